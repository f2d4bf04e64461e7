// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"pipeline-workers/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSPublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes job outcomes as JSON messages to one topic.
type SNSClient struct {
	client   SNSPublishAPI
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSNSClientWithAPI(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSClientWithAPI(api SNSPublishAPI, topicARN string) *SNSClient {
	return &SNSClient{client: api, topicARN: topicARN}
}

// PublishOutcome sends the outcome with a status message attribute so
// subscribers can filter on failures.
func (s *SNSClient) PublishOutcome(ctx context.Context, outcome models.JobOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode job outcome: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(s.topicARN),
		Subject:  awssdk.String(subject(outcome)),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"status": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(outcome.Status),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", s.topicARN, err)
	}
	return nil
}

func subject(outcome models.JobOutcome) string {
	return fmt.Sprintf("prepare-specs job %s %s", outcome.JobID, outcome.Status)
}
