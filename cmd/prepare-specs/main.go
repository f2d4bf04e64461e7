// cmd/prepare-specs/main.go
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"pipeline-workers/internal/common/artifact"
	awsnotify "pipeline-workers/internal/common/aws"
	"pipeline-workers/internal/common/codepipeline"
	"pipeline-workers/internal/common/config"
	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/common/observability"

	ps "pipeline-workers/internal/workers/deployment/prepare-specs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	obs := observability.New(observability.Config{
		ServiceName:     cfg.Observability.ServiceName,
		ServiceVersion:  cfg.App.Version,
		MetricsEnabled:  cfg.Observability.MetricsEnabled,
		TracingEndpoint: cfg.Observability.TracingEndpoint,
		PushgatewayURL:  cfg.Observability.PushgatewayURL,
	}, log)
	defer obs.Shutdown()

	ctx := context.Background()

	reporter, err := codepipeline.NewReporter(ctx, codepipeline.ClientConfig{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.CodePipelineEndpoint,
	})
	if err != nil {
		zapLog.Fatal("codepipeline client init failed", zap.Error(err))
	}

	notifier, err := buildNotifier(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	stores := artifact.NewS3Factory(artifact.S3Options{
		Region:       cfg.AWS.Region,
		Endpoint:     cfg.AWS.S3Endpoint,
		UsePathStyle: cfg.AWS.S3UsePathStyle,
		ContentType:  cfg.Artifacts.ContentType,
		KMSKeyID:     cfg.Artifacts.KMSKeyID,
		TempDir:      cfg.Artifacts.TempDir,
	}, log)

	handler := ps.NewHandler(ps.Dependencies{
		Config:        ps.LoadConfig(cfg),
		Stores:        stores,
		Reporter:      reporter,
		Notifier:      notifier,
		Observability: obs,
		Logger:        log,
	})

	zapLog.Info("prepare-specs ready",
		zap.String("templateDir", cfg.Templates.Dir),
		zap.Bool("sns", cfg.Notifications.SNS.Enabled),
		zap.Bool("ses", cfg.Notifications.SES.Enabled),
		zap.Bool("tracing", cfg.Observability.TracingEndpoint != ""),
	)

	lambda.Start(handler.HandleEvent)
}

func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) (awsnotify.OutcomeNotifier, error) {
	n := cfg.Notifications
	if !n.SNS.Enabled && !n.SES.Enabled {
		return awsnotify.NewNoopNotifier(), nil
	}

	var (
		snsClient *awsnotify.SNSClient
		sesClient *awsnotify.SESClient
		err       error
	)
	if n.SNS.Enabled {
		snsClient, err = awsnotify.NewSNSClient(ctx, cfg.AWS.Region, n.SNS.TopicARN)
		if err != nil {
			return nil, err
		}
	}
	if n.SES.Enabled {
		sesClient, err = awsnotify.NewSESClient(ctx, cfg.AWS.Region, n.SES.FromEmail, n.SES.ToEmails)
		if err != nil {
			return nil, err
		}
	}
	return awsnotify.NewNotifier(snsClient, sesClient, n.SES.OnlyOnFailure, log), nil
}
