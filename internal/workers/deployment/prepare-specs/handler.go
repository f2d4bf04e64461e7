package preparespecs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pipeline-workers/internal/common/artifact"
	awsnotify "pipeline-workers/internal/common/aws"
	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/jsonorder"
	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/common/metrics"
	"pipeline-workers/internal/common/observability"
	"pipeline-workers/internal/common/validation"
	"pipeline-workers/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const ActionName = "prepare-specs"

// Reporter sends the job's single status call.
type Reporter interface {
	ReportSuccess(ctx context.Context, jobID, summary string) error
	ReportFailure(ctx context.Context, jobID, message string) error
}

// Dependencies are built once per process. Notifier and Observability are
// optional.
type Dependencies struct {
	Config        *Config
	Stores        artifact.Factory
	Reporter      Reporter
	Notifier      awsnotify.OutcomeNotifier
	Observability *observability.Observability
	Logger        logger.Logger
}

type Handler struct {
	config        *Config
	stores        artifact.Factory
	reporter      Reporter
	notifier      awsnotify.OutcomeNotifier
	obs           *observability.Observability
	logger        logger.Logger
	taskDefSchema *validation.Validator
	specSchema    *validation.Validator
}

func NewHandler(deps Dependencies) *Handler {
	cfg := deps.Config
	if cfg == nil {
		cfg = defaultConfig()
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = awsnotify.NewNoopNotifier()
	}
	obs := deps.Observability
	if obs == nil {
		obs = observability.New(observability.Config{ServiceName: ActionName}, log)
	}

	return &Handler{
		config:        cfg,
		stores:        deps.Stores,
		reporter:      deps.Reporter,
		notifier:      notifier,
		obs:           obs,
		logger:        log.WithFields(map[string]interface{}{"action": ActionName}),
		taskDefSchema: validation.MustValidator("task definition", validation.TaskDefinitionSchema),
		specSchema:    validation.MustValidator("container spec", validation.ContainerSpecSchema),
	}
}

// HandleEvent is the Lambda entry point. Every job that carries an id gets
// exactly one status report. The returned error is non-nil only when that
// report could not be delivered, or when the event has no job id to report
// against.
func (h *Handler) HandleEvent(ctx context.Context, event events.CodePipelineJobEvent) error {
	start := time.Now()
	invocationID := uuid.NewString()
	jobID := event.CodePipelineJob.ID

	fields := map[string]interface{}{
		"jobId":        jobID,
		"invocationId": invocationID,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields["awsRequestId"] = lc.AwsRequestID
	}
	log := h.logger.WithFields(fields)

	defer h.obs.Flush(ctx)
	ctx, span := h.obs.StartSpan(ctx, ActionName+".job",
		attribute.String("job.id", jobID),
		attribute.String("invocation.id", invocationID),
	)
	defer span.End()

	log.Info("processing job", nil)

	job, err := ParseJob(event)
	if err != nil {
		return h.fail(ctx, log, jobID, invocationID, models.Artifact{}, err, start)
	}

	output, err := h.Execute(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return h.fail(ctx, log, job.ID, invocationID, job.OutputArtifact, err, start)
	}

	return h.succeed(ctx, log, invocationID, output, start)
}

// Execute runs every stage up to and including publishing. It never reports
// to CodePipeline.
func (h *Handler) Execute(ctx context.Context, job *models.Job) (*Output, error) {
	var (
		appSpec string
		taskDef jsonorder.Object
		arn     string
		store   artifact.Store
		spec    *ContainerSpec
		encoded string
	)

	err := h.stage(ctx, "render", func(ctx context.Context) error {
		params, err := PrepareParameters(job.UserParameters, h.config.ARNParameter)
		if err != nil {
			return err
		}
		if raw, ok := params.Get(h.config.ARNParameter); ok {
			arn = jsonorder.Text(raw)
		}
		appSpec, taskDef, err = h.renderTemplates(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = h.stage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		store, err = h.stores.NewStore(ctx, job.Credentials)
		if err != nil {
			return err
		}
		data, err := store.Fetch(ctx, job.InputArtifact)
		if err != nil {
			return err
		}
		metrics.ArtifactBytes.WithLabelValues(ActionName, "in").Add(float64(len(data)))
		spec, err = h.parseContainerSpec(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = h.stage(ctx, "merge", func(ctx context.Context) error {
		if err := h.taskDefSchema.Check(taskDef); err != nil {
			return errors.NewMergeError(err.Error())
		}
		if err := MergeTaskDefinition(&taskDef, spec); err != nil {
			return err
		}
		var err error
		encoded, err = encodeDocument(taskDef)
		if err != nil {
			return errors.NewMergeError(fmt.Sprintf("encode task definition: %v", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := []artifact.Entry{
		{Name: h.config.AppSpecFile, Content: []byte(appSpec)},
		{Name: h.config.TaskDefFile, Content: []byte(encoded)},
	}
	err = h.stage(ctx, "publish", func(ctx context.Context) error {
		return store.Publish(ctx, job.OutputArtifact, entries)
	})
	if err != nil {
		return nil, err
	}
	metrics.ArtifactBytes.WithLabelValues(ActionName, "out").Add(float64(len(appSpec) + len(encoded)))

	return &Output{
		JobID:             job.ID,
		Artifact:          job.OutputArtifact,
		TaskDefinitionArn: arn,
		AppSpec:           appSpec,
		TaskDefinition:    encoded,
	}, nil
}

func (h *Handler) renderTemplates(params jsonorder.Object) (string, jsonorder.Object, error) {
	appSpecTemplate, err := LoadTemplate(h.config.TemplateDir, h.config.AppSpecFile)
	if err != nil {
		return "", nil, err
	}
	appSpec := Render(appSpecTemplate, params)
	if h.config.ValidateAppSpec {
		if err := checkYAML(h.config.AppSpecFile, appSpec); err != nil {
			return "", nil, err
		}
	}

	taskDefTemplate, err := LoadTemplate(h.config.TemplateDir, h.config.TaskDefFile)
	if err != nil {
		return "", nil, err
	}
	taskDef, err := decodeDocument([]byte(Render(taskDefTemplate, params)))
	if err != nil {
		return "", nil, errors.NewConfigurationError("Error loading "+h.config.TaskDefFile, err)
	}
	return appSpec, taskDef, nil
}

func (h *Handler) parseContainerSpec(data []byte) (*ContainerSpec, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, errors.NewConfigurationError("Error loading container spec", err)
	}
	if err := h.specSchema.Check(doc); err != nil {
		return nil, errors.NewMergeError(err.Error())
	}

	var spec ContainerSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.NewConfigurationError("Error loading container spec", err)
	}
	return &spec, nil
}

func (h *Handler) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := h.obs.StartSpan(ctx, ActionName+"."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	h.obs.RecordStageDuration(ctx, name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (h *Handler) succeed(ctx context.Context, log logger.Logger, invocationID string, output *Output, start time.Time) error {
	summary := fmt.Sprintf("Published %s and %s to s3://%s/%s",
		h.config.AppSpecFile, h.config.TaskDefFile, output.Artifact.Bucket, output.Artifact.ObjectKey)

	if err := h.reporter.ReportSuccess(ctx, output.JobID, summary); err != nil {
		metrics.ReportFailures.WithLabelValues(ActionName).Inc()
		log.WithError(err).Error("failed to report job success", nil)
		return err
	}

	elapsed := time.Since(start)
	metrics.JobsCompleted.WithLabelValues(ActionName).Inc()
	metrics.JobDuration.WithLabelValues(ActionName).Observe(elapsed.Seconds())
	h.obs.RecordJobProcessed(ctx, models.JobStatusSucceeded)
	h.obs.RecordJobDuration(ctx, elapsed, models.JobStatusSucceeded)

	log.Info("job succeeded", map[string]interface{}{
		"taskDefinitionArn": output.TaskDefinitionArn,
		"bucket":            output.Artifact.Bucket,
		"key":               output.Artifact.ObjectKey,
		"durationMs":        elapsed.Milliseconds(),
	})

	h.notifier.Notify(ctx, models.JobOutcome{
		JobID:        output.JobID,
		InvocationID: invocationID,
		Status:       models.JobStatusSucceeded,
		Output:       output.Artifact,
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, log logger.Logger, jobID, invocationID string, out models.Artifact, cause error, start time.Time) error {
	elapsed := time.Since(start)
	stdErr := errors.Normalize(cause)

	metrics.JobsFailed.WithLabelValues(ActionName, string(stdErr.Code)).Inc()
	metrics.JobDuration.WithLabelValues(ActionName).Observe(elapsed.Seconds())
	h.obs.RecordJobProcessed(ctx, models.JobStatusFailed)
	h.obs.RecordJobDuration(ctx, elapsed, models.JobStatusFailed)

	if jobID == "" {
		log.Error("job cannot be reported without an id", map[string]interface{}{
			"errorCode": stdErr.Code,
			"error":     stdErr.Error(),
		})
		return stdErr
	}

	_, reportErr := errors.NewErrorHandler(h.reporter, log).HandleJobError(ctx, jobID, stdErr)
	if reportErr != nil {
		metrics.ReportFailures.WithLabelValues(ActionName).Inc()
	}

	h.notifier.Notify(ctx, models.JobOutcome{
		JobID:        jobID,
		InvocationID: invocationID,
		Status:       models.JobStatusFailed,
		ErrorCode:    string(stdErr.Code),
		Message:      stdErr.Error(),
		Output:       out,
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	return reportErr
}
