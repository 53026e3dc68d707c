package metrics

import (
	"time"

	"github.com/disputekit/disputekit/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Batch metrics
	BatchRunsTotal      = "batch_runs_total"
	BatchItemsTotal     = "batch_items_total"
	BatchDuration       = "batch_duration_ms"
	SubmitRetriesTotal  = "dispute_submit_retries_total"
	DisputesCreated     = "disputes_created_total"
	ActiveBatches       = "batch_active"
	TemplatePreviewsRun = "template_previews_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordBatchRun records a finished batch by terminal status.
func RecordBatchRun(status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		BatchRunsTotal,
		1,
		map[string]string{"status": status},
	)
	_ = observability.TelemetrySystem.Histogram(
		BatchDuration,
		duration,
		map[string]string{"status": status},
	)
}

// RecordBatchItem records one client outcome. code is empty on success.
func RecordBatchItem(status string, code string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BatchItemsTotal,
			1,
			map[string]string{
				"status":     status,
				"error_code": code,
			},
		)
	}
}

// RecordDisputeCreated counts persisted disputes per bureau.
func RecordDisputeCreated(bureau string, duplicate bool) {
	outcome := "created"
	if duplicate {
		outcome = "duplicate"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			DisputesCreated,
			1,
			map[string]string{
				"bureau":  bureau,
				"outcome": outcome,
			},
		)
	}
}

// RecordSubmitRetries counts submission retries beyond the first attempt.
func RecordSubmitRetries(retries int) {
	if retries <= 0 || observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		SubmitRetriesTotal,
		float64(retries),
		nil,
	)
}

// SetActiveBatches sets the number of batches currently running
func SetActiveBatches(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ActiveBatches,
			float64(count),
			nil,
		)
	}
}

// RecordTemplatePreview counts preview renders.
func RecordTemplatePreview(sampled bool) {
	source := "client"
	if sampled {
		source = "sample"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			TemplatePreviewsRun,
			1,
			map[string]string{"source": source},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
