// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Total number of pipeline jobs reported as succeeded",
		},
		[]string{"action"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_failed_total",
			Help: "Total number of pipeline jobs reported as failed",
		},
		[]string{"action", "error_code"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	ReportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_job_report_failures_total",
			Help: "Status reports CodePipeline rejected or that could not be sent",
		},
		[]string{"action"},
	)

	ArtifactBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_artifact_bytes_total",
			Help: "Bytes read from input artifacts and written to output archives entries",
		},
		[]string{"action", "direction"},
	)
)
