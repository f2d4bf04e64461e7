// Package codepipeline reports job outcomes back to AWS CodePipeline.
package codepipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
)

// MaxMessageLength is the longest failure message or summary CodePipeline
// accepts.
const MaxMessageLength = 5000

// JobResultAPI is the part of the CodePipeline client the reporter needs.
type JobResultAPI interface {
	PutJobSuccessResult(ctx context.Context, params *codepipeline.PutJobSuccessResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobSuccessResultOutput, error)
	PutJobFailureResult(ctx context.Context, params *codepipeline.PutJobFailureResultInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutJobFailureResultOutput, error)
}

// ClientConfig holds configuration for the CodePipeline client.
type ClientConfig struct {
	Region   string
	Endpoint string
}

// Reporter sends exactly one status call per invocation. It never retries;
// a failed report is returned to the Lambda runtime.
type Reporter struct {
	api JobResultAPI
}

// NewReporter builds the process-wide CodePipeline client. It is created once
// at cold start and shared by every invocation.
func NewReporter(ctx context.Context, cfg ClientConfig) (*Reporter, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for codepipeline: %w", err)
	}

	client := codepipeline.NewFromConfig(awsCfg, func(o *codepipeline.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewReporterWithAPI(client), nil
}

func NewReporterWithAPI(api JobResultAPI) *Reporter {
	return &Reporter{api: api}
}

// ReportSuccess marks the job succeeded. summary is shown in the pipeline
// console and may be empty.
func (r *Reporter) ReportSuccess(ctx context.Context, jobID, summary string) error {
	input := &codepipeline.PutJobSuccessResultInput{JobId: aws.String(jobID)}
	if summary != "" {
		input.ExecutionDetails = &types.ExecutionDetails{
			Summary: aws.String(Truncate(summary, MaxMessageLength)),
		}
	}

	if _, err := r.api.PutJobSuccessResult(ctx, input); err != nil {
		return fmt.Errorf("put job success result for %s: %w", jobID, err)
	}
	return nil
}

// ReportFailure marks the job failed with message as the failure detail.
func (r *Reporter) ReportFailure(ctx context.Context, jobID, message string) error {
	_, err := r.api.PutJobFailureResult(ctx, &codepipeline.PutJobFailureResultInput{
		JobId: aws.String(jobID),
		FailureDetails: &types.FailureDetails{
			Type:    types.FailureTypeJobFailed,
			Message: aws.String(Truncate(message, MaxMessageLength)),
		},
	})
	if err != nil {
		return fmt.Errorf("put job failure result for %s: %w", jobID, err)
	}
	return nil
}

// Truncate shortens s to at most max characters, cutting on a rune boundary.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
