package handlers

import (
	"net/http"
	"sync/atomic"

	apperrors "github.com/disputekit/disputekit/internal/errors"
)

// ErrorResponder writes err as an API error response.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var errorResponder atomic.Pointer[ErrorResponder]

// SetHTTPErrorResponder routes handler failures through responder. Nil
// restores the default envelope writer. Servers built concurrently in tests
// may call this while requests are in flight.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		errorResponder.Store(nil)
		return
	}
	errorResponder.Store(&responder)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if responder := errorResponder.Load(); responder != nil {
		(*responder)(w, r, err)
		return
	}
	apperrors.RespondWithError(w, r, err)
}
