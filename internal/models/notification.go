// internal/models/notification.go
package models

// JobOutcome is published to the optional notification channels after the
// status report has been sent.
type JobOutcome struct {
	JobID        string   `json:"jobId"`
	InvocationID string   `json:"invocationId"`
	Status       string   `json:"status"` // "succeeded" or "failed"
	ErrorCode    string   `json:"errorCode,omitempty"`
	Message      string   `json:"message,omitempty"`
	Output       Artifact `json:"output"`
	FinishedAt   string   `json:"finishedAt"`
}

const (
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)
