// internal/workers/deployment/prepare-specs/models.go
package preparespecs

import (
	"encoding/json"

	"pipeline-workers/internal/common/jsonorder"
	"pipeline-workers/internal/models"
)

// ContainerSpec is the input artifact written by the build stage. Values are
// kept as raw JSON so they are copied into the task definition unchanged, and
// Tags is a key/value mapping kept in document order.
type ContainerSpec struct {
	ContainerDefinitions []json.RawMessage `json:"containerDefinitions"`
	CPU                  json.RawMessage   `json:"cpu"`
	Memory               json.RawMessage   `json:"memory"`
	Tags                 jsonorder.Object  `json:"tags"`
}

// Output describes what a successful job published.
type Output struct {
	JobID             string          `json:"jobId"`
	Artifact          models.Artifact `json:"artifact"`
	TaskDefinitionArn string          `json:"taskDefinitionArn"`
	AppSpec           string          `json:"appSpec"`
	TaskDefinition    string          `json:"taskDefinition"`
}
