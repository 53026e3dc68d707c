package metrics

import (
	"net/http"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/observability"
)

func useCollector(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })
	return collector
}

func TestRecordErrorByRoute(t *testing.T) {
	collector := useCollector(t)

	RecordErrorByRoute("/v1/batches/{batchID}/result", "CONFLICT")
	RecordErrorByRoute("", "NOT_FOUND")

	recorded := collector.GetMetricsByName(APIErrorsByRoute)
	require.Len(t, recorded, 2)
	assert.Equal(t, "/v1/batches/{batchID}/result", recorded[0].Tags["route"])
	assert.Equal(t, UnmatchedRoute, recorded[1].Tags["route"])
	assert.Equal(t, "NOT_FOUND", recorded[1].Tags["error_code"])
}

func TestRecordErrorAndPanic(t *testing.T) {
	collector := useCollector(t)

	RecordError("VALIDATION_REJECTED", http.StatusUnprocessableEntity)
	RecordPanic()

	errs := collector.GetMetricsByName(APIErrorsTotal)
	require.Len(t, errs, 1)
	assert.Equal(t, "422", errs[0].Tags["http_status"])
	assert.Equal(t, 1, collector.CountMetricsByName(PanicsRecovered))
}

func TestCountersWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	assert.NotPanics(t, func() {
		RecordError("INTERNAL", http.StatusInternalServerError)
		RecordErrorByRoute("/v1/templates", "INTERNAL")
		RecordPanic()
	})
}
