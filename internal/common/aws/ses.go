// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"
	"strings"

	"pipeline-workers/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESSendAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESClient e-mails job outcomes to a fixed recipient list.
type SESClient struct {
	client SESSendAPI
	from   string
	to     []string
}

func NewSESClient(ctx context.Context, region, from string, to []string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSESClientWithAPI(ses.NewFromConfig(cfg), from, to), nil
}

func NewSESClientWithAPI(api SESSendAPI, from string, to []string) *SESClient {
	return &SESClient{client: api, from: from, to: to}
}

func (s *SESClient) SendOutcome(ctx context.Context, outcome models.JobOutcome) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(s.from),
		Destination: &sestypes.Destination{ToAddresses: s.to},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject(outcome)), Charset: awssdk.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(emailBody(outcome)), Charset: awssdk.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", strings.Join(s.to, ","), err)
	}
	return nil
}

func emailBody(outcome models.JobOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:        %s\n", outcome.JobID)
	fmt.Fprintf(&b, "Invocation: %s\n", outcome.InvocationID)
	fmt.Fprintf(&b, "Status:     %s\n", outcome.Status)
	fmt.Fprintf(&b, "Finished:   %s\n", outcome.FinishedAt)
	if outcome.Output.Bucket != "" {
		fmt.Fprintf(&b, "Output:     s3://%s/%s\n", outcome.Output.Bucket, outcome.Output.ObjectKey)
	}
	if outcome.ErrorCode != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", outcome.ErrorCode, outcome.Message)
	}
	return b.String()
}
