// internal/models/job.go
package models

// Job is the per-invocation view of a pipeline job. It is built from the event
// and discarded when the invocation returns.
type Job struct {
	ID             string
	AccountID      string
	InputArtifact  Artifact
	OutputArtifact Artifact
	UserParameters string
	Credentials    Credentials
}

// Artifact references one object in the pipeline's artifact store.
type Artifact struct {
	Name      string `json:"name"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}

// Credentials are the short-lived session keys CodePipeline hands to the action
// for artifact access. They are only valid for the current job.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Complete reports whether all three session values are present. CodePipeline
// always issues temporary keys, so a missing token is as invalid as a missing key.
func (c Credentials) Complete() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.SessionToken != ""
}
