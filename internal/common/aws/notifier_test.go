package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	return &sns.PublishOutput{}, args.Error(0)
}

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	return &ses.SendEmailOutput{}, args.Error(0)
}

func failedOutcome() models.JobOutcome {
	return models.JobOutcome{
		JobID:        "job-1",
		InvocationID: "inv-1",
		Status:       models.JobStatusFailed,
		ErrorCode:    "MERGE_ERROR",
		Message:      "MERGE_ERROR: Error merging task definition: key portMappings missing",
		FinishedAt:   "2024-01-01T00:00:00Z",
	}
}

func TestSNSClient_PublishOutcome(t *testing.T) {
	api := new(MockSNS)
	var got *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*sns.PublishInput) }).
		Return(nil).Once()

	client := NewSNSClientWithAPI(api, "arn:aws:sns:us-east-1:123456789012:deployments")
	require.NoError(t, client.PublishOutcome(context.Background(), failedOutcome()))

	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:deployments", *got.TopicArn)
	assert.Equal(t, "prepare-specs job job-1 failed", *got.Subject)
	assert.Equal(t, "failed", *got.MessageAttributes["status"].StringValue)

	var decoded models.JobOutcome
	require.NoError(t, json.Unmarshal([]byte(*got.Message), &decoded))
	assert.Equal(t, failedOutcome(), decoded)
}

func TestSESClient_SendOutcome(t *testing.T) {
	api := new(MockSES)
	var got *ses.SendEmailInput
	api.On("SendEmail", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*ses.SendEmailInput) }).
		Return(nil).Once()

	client := NewSESClientWithAPI(api, "pipeline@example.com", []string{"ops@example.com"})
	require.NoError(t, client.SendOutcome(context.Background(), failedOutcome()))

	assert.Equal(t, "pipeline@example.com", *got.Source)
	assert.Equal(t, []string{"ops@example.com"}, got.Destination.ToAddresses)
	assert.Contains(t, *got.Message.Body.Text.Data, "MERGE_ERROR")
	assert.Contains(t, *got.Message.Body.Text.Data, "inv-1")
}

func TestNotifier_EmailOnlyOnFailure(t *testing.T) {
	snsAPI := new(MockSNS)
	snsAPI.On("Publish", mock.Anything, mock.Anything).Return(nil).Twice()
	sesAPI := new(MockSES)
	sesAPI.On("SendEmail", mock.Anything, mock.Anything).Return(nil).Once()

	n := NewNotifier(
		NewSNSClientWithAPI(snsAPI, "topic"),
		NewSESClientWithAPI(sesAPI, "from@example.com", []string{"to@example.com"}),
		true,
		logger.NewTestLogger(t),
	)

	succeeded := models.JobOutcome{JobID: "job-1", Status: models.JobStatusSucceeded}
	n.Notify(context.Background(), succeeded)
	n.Notify(context.Background(), failedOutcome())

	snsAPI.AssertNumberOfCalls(t, "Publish", 2)
	sesAPI.AssertNumberOfCalls(t, "SendEmail", 1)
}

func TestNotifier_DeliveryErrorsAreSwallowed(t *testing.T) {
	snsAPI := new(MockSNS)
	snsAPI.On("Publish", mock.Anything, mock.Anything).Return(errors.New("topic not found"))

	n := NewNotifier(NewSNSClientWithAPI(snsAPI, "topic"), nil, false, logger.NewTestLogger(t))

	assert.NotPanics(t, func() { n.Notify(context.Background(), failedOutcome()) })
	snsAPI.AssertExpectations(t)
}
