package metrics

import (
	"strconv"

	"github.com/disputekit/disputekit/internal/observability"
)

var (
	APIErrorsTotal   = "api_errors_total"
	APIErrorsByRoute = "api_errors_by_route_total"
	PanicsRecovered  = "panics_recovered_total"
)

// UnmatchedRoute labels errors for requests no route handled.
const UnmatchedRoute = "unmatched"

// RecordError counts an API error response by code and status.
func RecordError(errorCode string, httpStatus int) {
	counter(APIErrorsTotal, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordErrorByRoute counts an API error against the chi route pattern,
// never the raw path, so batch and template IDs stay out of the labels.
func RecordErrorByRoute(route string, errorCode string) {
	if route == "" {
		route = UnmatchedRoute
	}
	counter(APIErrorsByRoute, map[string]string{
		"route":      route,
		"error_code": errorCode,
	})
}

// RecordPanic counts a recovered panic in a handler or batch worker.
func RecordPanic() {
	counter(PanicsRecovered, nil)
}

func counter(name string, tags map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(name, 1, tags)
}
