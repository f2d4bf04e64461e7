// internal/common/errors/handler.go
package errors

import (
	"context"
)

// FailureReporter sends a failure result for a job to the orchestrator.
type FailureReporter interface {
	ReportFailure(ctx context.Context, jobID, message string) error
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns any job error into exactly one failure report.
type ErrorHandler struct {
	reporter FailureReporter
	logger   Logger
}

func NewErrorHandler(reporter FailureReporter, logger Logger) *ErrorHandler {
	return &ErrorHandler{reporter: reporter, logger: logger}
}

// HandleJobError normalizes err, logs it and reports the job as failed. The
// returned error is the reporting fault, if any; it is not retried. The logger
// is expected to be scoped to the job already, so the job id is not repeated
// in the log fields.
func (h *ErrorHandler) HandleJobError(ctx context.Context, jobID string, err error) (*StandardError, error) {
	stdErr := Normalize(err)

	h.logError(stdErr)

	if reportErr := h.reporter.ReportFailure(ctx, jobID, stdErr.Error()); reportErr != nil {
		h.logger.Error("failed to report job failure", map[string]interface{}{
			"error": reportErr.Error(),
		})
		return stdErr, reportErr
	}
	return stdErr, nil
}

func (h *ErrorHandler) logError(stdErr *StandardError) {
	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("Job failed", fields)
}
