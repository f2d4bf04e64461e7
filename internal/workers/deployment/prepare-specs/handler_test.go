package preparespecs

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipeline-workers/internal/common/artifact"
	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testAppSpec = `version: 0.0
Resources:
  - TargetService:
      Type: AWS::ECS::Service
      Properties:
        TaskDefinition: "{taskDefinitionArn}"
        LoadBalancerInfo:
          ContainerName: "{containerName}"
          ContainerPort: {containerPort}
`

const testTaskDef = `{
  "family": "{family}",
  "executionRoleArn": "{executionRoleArn}",
  "networkMode": "awsvpc",
  "containerDefinitions": [{
    "name": "{containerName}",
    "image": "<IMAGE1_NAME>",
    "portMappings": [{"containerPort": {containerPort}}],
    "environment": [{"name": "STAGE", "value": "prod"}],
    "secrets": []
  }],
  "cpu": "256",
  "memory": "512",
  "tags": [{"key": "app", "value": "{family}"}]
}`

// staticTaskDef has no placeholders so a job can only fail on the appspec.
const staticTaskDef = `{
  "containerDefinitions": [{"environment": [], "secrets": []}],
  "cpu": "256",
  "memory": "512",
  "tags": []
}`

const testParameters = `{
  "taskDefinitionArn": "arn:aws:ecs:us-east-1:123456789012:task-definition/web:3",
  "containerName": "web",
  "containerPort": 8080,
  "family": "web",
  "executionRoleArn": "arn:aws:iam::123456789012:role/exec"
}`

const testContainerSpec = `{
  "containerDefinitions": [{
    "environment": [{"name": "DB_HOST", "value": "db"}],
    "secrets": [{"name": "DB_PASSWORD", "valueFrom": "arn:aws:secretsmanager:us-east-1:123456789012:secret:db"}]
  }],
  "cpu": "512",
  "memory": "1024",
  "tags": {"commit": "abc123", "branch": "main"}
}`

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) ReportSuccess(ctx context.Context, jobID, summary string) error {
	return m.Called(ctx, jobID, summary).Error(0)
}

func (m *MockReporter) ReportFailure(ctx context.Context, jobID, message string) error {
	return m.Called(ctx, jobID, message).Error(0)
}

type fakeStore struct {
	input        []byte
	fetchErr     error
	publishErr   error
	fetched      []models.Artifact
	publishCalls int
	publishedTo  models.Artifact
	published    []artifact.Entry
}

func (s *fakeStore) Fetch(_ context.Context, a models.Artifact) ([]byte, error) {
	s.fetched = append(s.fetched, a)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.input, nil
}

func (s *fakeStore) Publish(_ context.Context, a models.Artifact, entries []artifact.Entry) error {
	s.publishCalls++
	if s.publishErr != nil {
		return s.publishErr
	}
	s.publishedTo = a
	s.published = entries
	return nil
}

type fakeFactory struct {
	store *fakeStore
	err   error
	creds []models.Credentials
}

func (f *fakeFactory) NewStore(_ context.Context, creds models.Credentials) (artifact.Store, error) {
	f.creds = append(f.creds, creds)
	if f.err != nil {
		return nil, f.err
	}
	return f.store, nil
}

type recordingNotifier struct {
	outcomes []models.JobOutcome
}

func (n *recordingNotifier) Notify(_ context.Context, outcome models.JobOutcome) {
	n.outcomes = append(n.outcomes, outcome)
}

type testEnv struct {
	handler  *Handler
	reporter *MockReporter
	factory  *fakeFactory
	store    *fakeStore
	notifier *recordingNotifier
	config   *Config
}

func writeTemplates(t *testing.T, appSpec, taskDef string) string {
	t.Helper()
	dir := t.TempDir()
	if appSpec != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "appspec.yaml"), []byte(appSpec), 0o644))
	}
	if taskDef != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "taskdef.json"), []byte(taskDef), 0o644))
	}
	return dir
}

func createTestEnv(t *testing.T, templateDir string) *testEnv {
	t.Helper()
	cfg := defaultConfig()
	cfg.TemplateDir = templateDir

	env := &testEnv{
		reporter: new(MockReporter),
		store:    &fakeStore{input: []byte(testContainerSpec)},
		notifier: &recordingNotifier{},
		config:   cfg,
	}
	env.factory = &fakeFactory{store: env.store}
	env.handler = NewHandler(Dependencies{
		Config:   cfg,
		Stores:   env.factory,
		Reporter: env.reporter,
		Notifier: env.notifier,
		Logger:   logger.NewTestLogger(t),
	})
	return env
}

func (e *testEnv) expectFailure(contains string) {
	e.reporter.On("ReportFailure", mock.Anything, "job-1", mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, contains)
	})).Return(nil).Once()
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandleEvent_Success(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))
	env.reporter.On("ReportSuccess", mock.Anything, "job-1",
		"Published appspec.yaml and taskdef.json to s3://artifact-bucket/pipeline/Specs/out.zip").
		Return(nil).Once()

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	err := env.handler.HandleEvent(ctx, createTestEvent("job-1", testParameters))

	require.NoError(t, err)
	env.reporter.AssertExpectations(t)
	env.reporter.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, env.factory.creds, 1)
	assert.Equal(t, "ASIAEXAMPLE", env.factory.creds[0].AccessKeyID)
	assert.Equal(t, []models.Artifact{{Name: "Build", Bucket: "artifact-bucket", ObjectKey: "pipeline/Build/in.json"}}, env.store.fetched)

	assert.Equal(t, 1, env.store.publishCalls)
	assert.Equal(t, "pipeline/Specs/out.zip", env.store.publishedTo.ObjectKey)
	require.Len(t, env.store.published, 2)
	assert.Equal(t, "appspec.yaml", env.store.published[0].Name)
	assert.Equal(t, "taskdef.json", env.store.published[1].Name)

	assert.Equal(t, `version: 0.0
Resources:
  - TargetService:
      Type: AWS::ECS::Service
      Properties:
        TaskDefinition: "arn:aws:ecs:us-east-1:123456789012:task-definition/web"
        LoadBalancerInfo:
          ContainerName: "web"
          ContainerPort: 8080
`, string(env.store.published[0].Content))

	assert.JSONEq(t, `{
	  "family": "web",
	  "executionRoleArn": "arn:aws:iam::123456789012:role/exec",
	  "networkMode": "awsvpc",
	  "containerDefinitions": [{
	    "name": "web",
	    "image": "<IMAGE1_NAME>",
	    "portMappings": [{"containerPort": 8080}],
	    "environment": [{"name": "STAGE", "value": "prod"}, {"name": "DB_HOST", "value": "db"}],
	    "secrets": [{"name": "DB_PASSWORD", "valueFrom": "arn:aws:secretsmanager:us-east-1:123456789012:secret:db"}]
	  }],
	  "cpu": "512",
	  "memory": "1024",
	  "tags": [
	    {"key": "app", "value": "web"},
	    {"key": "commit", "value": "abc123"},
	    {"key": "branch", "value": "main"}
	  ]
	}`, string(env.store.published[1].Content))

	require.Len(t, env.notifier.outcomes, 1)
	assert.Equal(t, models.JobStatusSucceeded, env.notifier.outcomes[0].Status)
	assert.NotEmpty(t, env.notifier.outcomes[0].InvocationID)
}

func TestExecute_Output(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))
	job, err := ParseJob(createTestEvent("job-1", testParameters))
	require.NoError(t, err)

	out, err := env.handler.Execute(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "arn:aws:ecs:us-east-1:123456789012:task-definition/web", out.TaskDefinitionArn)
	assert.Equal(t, "Specs", out.Artifact.Name)
	assert.Equal(t, string(env.store.published[1].Content), out.TaskDefinition)
	assert.Equal(t, `{"family":"web","executionRoleArn":"arn:aws:iam::123456789012:role/exec","networkMode":"awsvpc",`+
		`"containerDefinitions":[{"name":"web","image":"<IMAGE1_NAME>","portMappings":[{"containerPort":8080}],`+
		`"environment":[{"name":"STAGE","value":"prod"},{"name":"DB_HOST","value":"db"}],`+
		`"secrets":[{"name":"DB_PASSWORD","valueFrom":"arn:aws:secretsmanager:us-east-1:123456789012:secret:db"}]}],`+
		`"cpu":"512","memory":"1024",`+
		`"tags":[{"key":"app","value":"web"},{"key":"commit","value":"abc123"},{"key":"branch","value":"main"}]}`,
		out.TaskDefinition)
	env.reporter.AssertNotCalled(t, "ReportSuccess", mock.Anything, mock.Anything, mock.Anything)
}

// ==========================
// Failure Tests
// ==========================

func TestHandleEvent_Failures(t *testing.T) {
	tests := []struct {
		name        string
		parameters  string
		noAppSpec   bool
		taskDef     string
		setup       func(env *testEnv)
		wantMessage string
		wantFetch   bool
	}{
		{
			name:        "malformed user parameters",
			parameters:  `{"taskDefinitionArn": `,
			wantMessage: "CONFIGURATION_ERROR: Error loading config",
		},
		{
			name:        "missing task definition arn",
			parameters:  `{"containerName": "web"}`,
			wantMessage: `parameter "taskDefinitionArn" is missing`,
		},
		{
			name:        "missing appspec template",
			noAppSpec:   true,
			wantMessage: "FILE_ACCESS_ERROR: Error accessing file",
		},
		{
			name:        "rendered task definition is not JSON",
			taskDef:     `{"family": {family}}`,
			wantMessage: "CONFIGURATION_ERROR: Error loading taskdef.json",
		},
		{
			name:        "rendered appspec is not YAML",
			parameters:  `{"taskDefinitionArn": "arn:a:1", "containerName": "x\" [", "containerPort": 80, "family": "web", "executionRoleArn": "r"}`,
			wantMessage: "CONFIGURATION_ERROR: Error loading appspec.yaml",
		},
		{
			name:        "store cannot be created",
			setup:       func(env *testEnv) { env.factory.err = errors.NewStorageError("configuring", stderrors.New("no region")) },
			wantMessage: "STORAGE_ERROR: Error configuring artifact: no region",
		},
		{
			name:        "input artifact download fails",
			setup:       func(env *testEnv) { env.store.fetchErr = errors.NewStorageError("downloading", stderrors.New("AccessDenied")) },
			wantMessage: "STORAGE_ERROR: Error downloading artifact: AccessDenied",
			wantFetch:   true,
		},
		{
			name:        "input artifact is not JSON",
			setup:       func(env *testEnv) { env.store.input = []byte("not json") },
			wantMessage: "CONFIGURATION_ERROR: Error loading container spec",
			wantFetch:   true,
		},
		{
			name:        "container spec tags are a list",
			setup:       func(env *testEnv) { env.store.input = []byte(`{"containerDefinitions":[{}],"cpu":"1","memory":"1","tags":[]}`) },
			wantMessage: "MERGE_ERROR",
			wantFetch:   true,
		},
		{
			name: "container spec key missing from task definition",
			setup: func(env *testEnv) {
				env.store.input = []byte(`{"containerDefinitions":[{"mountPoints":[]}],"cpu":"1","memory":"1","tags":{}}`)
			},
			wantMessage: "MERGE_ERROR: Error merging task definition: containerDefinitions[0].mountPoints is not in the task definition",
			wantFetch:   true,
		},
		{
			name:        "task definition has no tags",
			taskDef:     `{"containerDefinitions": [{}], "cpu": "256", "memory": "512"}`,
			wantMessage: "MERGE_ERROR",
			wantFetch:   true,
		},
		{
			name:        "upload fails",
			setup:       func(env *testEnv) { env.store.publishErr = errors.NewStorageError("uploading", stderrors.New("SlowDown")) },
			wantMessage: "STORAGE_ERROR: Error uploading artifact: SlowDown",
			wantFetch:   true,
		},
		{
			name:        "archive fails",
			setup:       func(env *testEnv) { env.store.publishErr = errors.NewArchiveError("taskdef.json", stderrors.New("disk full")) },
			wantMessage: "ARCHIVE_ERROR: Error writing zip file: disk full",
			wantFetch:   true,
		},
		{
			name:        "unexpected error",
			setup:       func(env *testEnv) { env.store.fetchErr = stderrors.New("boom") },
			wantMessage: "INTERNAL_ERROR: Unexpected error: boom",
			wantFetch:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appSpec, taskDef := testAppSpec, testTaskDef
			if tt.noAppSpec {
				appSpec = ""
			}
			if tt.taskDef != "" {
				taskDef = tt.taskDef
			}
			params := testParameters
			if tt.parameters != "" {
				params = tt.parameters
			}

			env := createTestEnv(t, writeTemplates(t, appSpec, taskDef))
			if tt.setup != nil {
				tt.setup(env)
			}
			env.expectFailure(tt.wantMessage)

			err := env.handler.HandleEvent(context.Background(), createTestEvent("job-1", params))

			require.NoError(t, err)
			env.reporter.AssertExpectations(t)
			env.reporter.AssertNumberOfCalls(t, "ReportFailure", 1)
			env.reporter.AssertNotCalled(t, "ReportSuccess", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, env.store.published, "nothing may be published for a failed job")
			if !tt.wantFetch {
				assert.Empty(t, env.store.fetched)
			}

			require.Len(t, env.notifier.outcomes, 1)
			assert.Equal(t, models.JobStatusFailed, env.notifier.outcomes[0].Status)
		})
	}
}

func TestHandleEvent_AppSpecValidationDisabled(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, "ContainerName: \"{containerName}\"\n", staticTaskDef))
	env.config.ValidateAppSpec = false
	env.reporter.On("ReportSuccess", mock.Anything, "job-1", mock.Anything).Return(nil).Once()

	params := `{"taskDefinitionArn": "arn:a:1", "containerName": "x\" [", "containerPort": 80, "family": "web", "executionRoleArn": "r"}`
	require.NoError(t, env.handler.HandleEvent(context.Background(), createTestEvent("job-1", params)))

	env.reporter.AssertExpectations(t)
	assert.Equal(t, "ContainerName: \"x\" [\"\n", string(env.store.published[0].Content))
}

func TestHandleEvent_AppSpecValidationEnabledRejectsSameInput(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, "ContainerName: \"{containerName}\"\n", staticTaskDef))
	env.expectFailure("CONFIGURATION_ERROR: Error loading appspec.yaml")

	params := `{"taskDefinitionArn": "arn:a:1", "containerName": "x\" ["}`
	require.NoError(t, env.handler.HandleEvent(context.Background(), createTestEvent("job-1", params)))

	env.reporter.AssertExpectations(t)
	assert.Empty(t, env.store.published)
}

func TestHandleEvent_MissingCredentialsFailsJob(t *testing.T) {
	tests := []struct {
		name  string
		creds events.CodePipelineArtifactCredentials
	}{
		{"none", events.CodePipelineArtifactCredentials{}},
		{"no session token", events.CodePipelineArtifactCredentials{AccessKeyID: "ASIAEXAMPLE", SecretAccessKey: "secret"}},
		{"no secret key", events.CodePipelineArtifactCredentials{AccessKeyID: "ASIAEXAMPLE", SessionToken: "token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))
			env.expectFailure("CONFIGURATION_ERROR: Invalid job payload")

			event := createTestEvent("job-1", testParameters)
			event.CodePipelineJob.Data.ArtifactCredentials = tt.creds
			require.NoError(t, env.handler.HandleEvent(context.Background(), event))

			env.reporter.AssertExpectations(t)
			assert.Empty(t, env.factory.creds, "no store may be built without job credentials")
			assert.Empty(t, env.store.fetched)
		})
	}
}

func TestHandleEvent_FailureReportErrorIsReturned(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))
	env.reporter.On("ReportFailure", mock.Anything, "job-1", mock.Anything).Return(stderrors.New("throttled")).Once()

	err := env.handler.HandleEvent(context.Background(), createTestEvent("job-1", "not json"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	env.reporter.AssertNumberOfCalls(t, "ReportFailure", 1)
	env.reporter.AssertNotCalled(t, "ReportSuccess", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_SuccessReportErrorIsNotFollowedByFailureReport(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))
	env.reporter.On("ReportSuccess", mock.Anything, "job-1", mock.Anything).Return(stderrors.New("job already completed")).Once()

	err := env.handler.HandleEvent(context.Background(), createTestEvent("job-1", testParameters))

	require.Error(t, err)
	env.reporter.AssertNumberOfCalls(t, "ReportSuccess", 1)
	env.reporter.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, env.notifier.outcomes)
}

func TestHandleEvent_MissingJobID(t *testing.T) {
	env := createTestEnv(t, writeTemplates(t, testAppSpec, testTaskDef))

	err := env.handler.HandleEvent(context.Background(), createTestEvent("", testParameters))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
	env.reporter.AssertNotCalled(t, "ReportSuccess", mock.Anything, mock.Anything, mock.Anything)
	env.reporter.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, env.factory.creds)
}
