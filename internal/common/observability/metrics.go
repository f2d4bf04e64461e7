package observability

import (
	"context"
	"os"
	"time"

	"pipeline-workers/internal/common/logger"

	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects what New sets up. Registerer and Gatherer default to the
// prometheus default registry. Instance names the Pushgateway group and
// defaults to the host name.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	MetricsEnabled  bool
	TracingEndpoint string
	PushgatewayURL  string
	Instance        string
	Registerer      promclient.Registerer
	Gatherer        promclient.Gatherer
}

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	stageDuration otelmetric.Float64Histogram

	pusher *push.Pusher

	tracing *tracing
	tracer  trace.Tracer
	logger  logger.Logger
}

// New never fails: an exporter that cannot be created is logged and its
// signal disabled.
func New(cfg Config, log logger.Logger) *Observability {
	o := &Observability{
		tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName),
		logger: log,
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.MetricsEnabled {
		o.setupMetrics(cfg, res)
	}

	if cfg.PushgatewayURL != "" {
		o.pusher = newPusher(cfg)
	}

	if cfg.TracingEndpoint != "" {
		t, err := newTracing(cfg.TracingEndpoint, res)
		if err != nil {
			log.WithError(err).Warn("Tracing disabled", map[string]interface{}{"endpoint": cfg.TracingEndpoint})
		} else {
			o.tracing = t
			o.tracer = t.provider.Tracer(cfg.ServiceName)
		}
	}

	return o
}

// newPusher groups by instance so concurrent sandboxes do not overwrite each
// other's series.
func newPusher(cfg Config) *push.Pusher {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = promclient.DefaultGatherer
	}
	instance := cfg.Instance
	if instance == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			instance = host
		} else {
			instance = uuid.NewString()
		}
	}
	return push.New(cfg.PushgatewayURL, cfg.ServiceName).
		Gatherer(gatherer).
		Grouping("instance", instance)
}

func (o *Observability) setupMetrics(cfg Config, res *resource.Resource) {
	var opts []prometheus.Option
	if cfg.Registerer != nil {
		opts = append(opts, prometheus.WithRegisterer(cfg.Registerer))
	}

	exporter, err := prometheus.New(opts...)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to create Prometheus exporter", nil)
		return
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(cfg.ServiceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs_processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs_duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	stageDuration, _ := meter.Float64Histogram(
		"jobs_stage_duration",
		otelmetric.WithDescription("Duration of one pipeline stage"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.jobCounter = jobCounter
	o.jobDuration = jobDuration
	o.stageDuration = stageDuration
}

// StartSpan starts a span on the configured tracer. It is a no-op span when
// tracing is disabled.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordStageDuration(ctx context.Context, stage string, duration time.Duration) {
	if o.stageDuration != nil {
		o.stageDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
}

// Flush exports buffered spans and pushes metrics. Lambda freezes the process
// between invocations, so it is called before each handler returns.
func (o *Observability) Flush(ctx context.Context) {
	if o.tracing != nil {
		if err := o.tracing.provider.ForceFlush(ctx); err != nil {
			o.logger.WithError(err).Warn("Failed to flush spans", nil)
		}
	}
	if o.pusher != nil {
		if err := o.pusher.AddContext(ctx); err != nil {
			o.logger.WithError(err).Warn("Failed to push metrics", nil)
		}
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		o.tracing.provider.Shutdown(ctx)
	}
}
