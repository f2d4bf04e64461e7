// internal/workers/deployment/prepare-specs/parser.go
package preparespecs

import (
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/jsonorder"
	"pipeline-workers/internal/models"
)

// ParseJob extracts the fields this action uses. Only the first input and
// output artifacts are read. The job must carry a complete set of artifact
// credentials; storage access is never attempted with the function's own role.
func ParseJob(event events.CodePipelineJobEvent) (*models.Job, error) {
	cp := event.CodePipelineJob
	if cp.ID == "" {
		return nil, errors.NewConfigurationError("Invalid job payload", fmt.Errorf("job id is missing"))
	}
	if len(cp.Data.InputArtifacts) == 0 {
		return nil, errors.NewConfigurationError("Invalid job payload", fmt.Errorf("job has no input artifacts"))
	}
	if len(cp.Data.OutPutArtifacts) == 0 {
		return nil, errors.NewConfigurationError("Invalid job payload", fmt.Errorf("job has no output artifacts"))
	}

	creds := models.Credentials{
		AccessKeyID:     cp.Data.ArtifactCredentials.AccessKeyID,
		SecretAccessKey: cp.Data.ArtifactCredentials.SecretAccessKey,
		SessionToken:    cp.Data.ArtifactCredentials.SessionToken,
	}
	if !creds.Complete() {
		return nil, errors.NewConfigurationError("Invalid job payload", fmt.Errorf("job artifact credentials are missing or incomplete"))
	}

	input, output := cp.Data.InputArtifacts[0], cp.Data.OutPutArtifacts[0]
	return &models.Job{
		ID:             cp.ID,
		AccountID:      cp.AccountID,
		InputArtifact:  toArtifact(input.Name, input.Location),
		OutputArtifact: toArtifact(output.Name, output.Location),
		UserParameters: cp.Data.ActionConfiguration.Configuration.UserParameters,
		Credentials:    creds,
	}, nil
}

func toArtifact(name string, loc events.CodePipelineInputLocation) models.Artifact {
	return models.Artifact{
		Name:      name,
		Bucket:    loc.S3Location.BucketName,
		ObjectKey: loc.S3Location.ObjectKey,
	}
}

// ParseParameters decodes the action's UserParameters, which must be a JSON
// object.
func ParseParameters(raw string) (jsonorder.Object, error) {
	params, err := jsonorder.Parse([]byte(raw))
	if err != nil {
		return nil, errors.NewConfigurationError("Error loading config", err)
	}
	return params, nil
}

// PrepareParameters parses the parameters and replaces the task definition
// ARN stored under arnKey with its unversioned form.
func PrepareParameters(raw, arnKey string) (jsonorder.Object, error) {
	params, err := ParseParameters(raw)
	if err != nil {
		return nil, err
	}

	value, ok := params.Get(arnKey)
	if !ok {
		return nil, errors.NewConfigurationError("Error loading config", fmt.Errorf("parameter %q is missing", arnKey))
	}
	decoded, err := jsonorder.Decode(value)
	if err != nil {
		return nil, errors.NewConfigurationError("Error loading config", err)
	}
	arn, ok := decoded.(string)
	if !ok {
		return nil, errors.NewConfigurationError("Error loading config", fmt.Errorf("parameter %q must be a string", arnKey))
	}

	params.SetString(arnKey, StripVersion(arn))
	return params, nil
}

// StripVersion drops the last colon-separated segment of an ARN, turning
// "arn:aws:ecs:us-east-1:123:task-definition/web:7" into
// "arn:aws:ecs:us-east-1:123:task-definition/web". The segment is dropped
// even when it is not a revision number, and a value without any colon
// becomes empty.
func StripVersion(arn string) string {
	i := strings.LastIndex(arn, ":")
	if i < 0 {
		return ""
	}
	return arn[:i]
}
