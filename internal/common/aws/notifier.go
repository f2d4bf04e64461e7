package aws

import (
	"context"

	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/models"
)

// OutcomeNotifier is implemented by Notifier and by a no-op used when no
// channel is configured.
type OutcomeNotifier interface {
	Notify(ctx context.Context, outcome models.JobOutcome)
}

// Notifier fans a job outcome out to the configured channels. Delivery
// failures are logged and never affect the job result.
type Notifier struct {
	sns               *SNSClient
	ses               *SESClient
	emailOnlyFailures bool
	logger            logger.Logger
}

// NewNotifier accepts nil for a disabled channel.
func NewNotifier(snsClient *SNSClient, sesClient *SESClient, emailOnlyFailures bool, log logger.Logger) *Notifier {
	return &Notifier{
		sns:               snsClient,
		ses:               sesClient,
		emailOnlyFailures: emailOnlyFailures,
		logger:            log,
	}
}

func (n *Notifier) Notify(ctx context.Context, outcome models.JobOutcome) {
	fields := map[string]interface{}{
		"jobId":        outcome.JobID,
		"invocationId": outcome.InvocationID,
	}

	if n.sns != nil {
		if err := n.sns.PublishOutcome(ctx, outcome); err != nil {
			n.logger.WithError(err).Warn("SNS notification failed", fields)
		}
	}

	if n.ses != nil && (!n.emailOnlyFailures || outcome.Status == models.JobStatusFailed) {
		if err := n.ses.SendOutcome(ctx, outcome); err != nil {
			n.logger.WithError(err).Warn("SES notification failed", fields)
		}
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.JobOutcome) {}

func NewNoopNotifier() OutcomeNotifier {
	return noopNotifier{}
}
