// Package artifact reads and writes pipeline artifacts in the job's artifact
// bucket using the short-lived credentials CodePipeline hands to the action.
package artifact

import (
	"context"

	"pipeline-workers/internal/models"
)

// Entry is one named file inside a published archive.
type Entry struct {
	Name    string
	Content []byte
}

// Store fetches input artifacts and publishes output archives.
type Store interface {
	// Fetch returns the full contents of the artifact object.
	Fetch(ctx context.Context, artifact models.Artifact) ([]byte, error)
	// Publish zips entries in order and uploads the archive. Nothing is
	// uploaded unless every entry was written.
	Publish(ctx context.Context, artifact models.Artifact, entries []Entry) error
}

// Factory builds a Store bound to one job's credentials. Stores must not be
// reused across jobs.
type Factory interface {
	NewStore(ctx context.Context, creds models.Credentials) (Store, error)
}
