package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/engine"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		core.CodeTemplateValidation:   http.StatusUnprocessableEntity,
		core.CodeValidationRejected:   http.StatusUnprocessableEntity,
		core.CodeNotFound:             http.StatusNotFound,
		core.CodeDuplicateDetected:    http.StatusConflict,
		core.CodeTransientUnavailable: http.StatusServiceUnavailable,
		CodeConflict:                  http.StatusConflict,
		CodeInvalidInput:              http.StatusBadRequest,
		core.CodeInternal:             http.StatusInternalServerError,
		"SOMETHING_ELSE":              http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestFromDomain(t *testing.T) {
	ctx := context.Background()

	env := FromDomain(ctx, &core.TemplateValidationError{
		ClientID: "c1",
		Bureau:   core.BureauEquifax,
		Tokens:   []string{"client_phone"},
	})
	assert.Equal(t, core.CodeTemplateValidation, env.Code)
	assert.Contains(t, env.Context, "tokens")
	assert.Equal(t, "equifax", env.Context["bureau"])

	env = FromDomain(ctx, fmt.Errorf("load: %w", &core.NotFoundError{Kind: "template", ID: "t9"}))
	assert.Equal(t, core.CodeNotFound, env.Code)
	assert.Equal(t, "t9", env.Context["id"])

	env = FromDomain(ctx, engine.ErrBatchNotTerminal)
	assert.Equal(t, CodeConflict, env.Code)

	env = FromDomain(ctx, fmt.Errorf("boom"))
	assert.Equal(t, core.CodeInternal, env.Code)
	assert.NotEmpty(t, env.CorrelationID)
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/batches/b1/result", nil)

	RespondWithError(rec, req, &core.ValidationRejectedError{Field: "selections", Reason: "at least one client is required"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.CodeValidationRejected, body.Error.Code)
	assert.Equal(t, "selections", body.Error.Details["field"])
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelopePassesThrough(t *testing.T) {
	original := NewInvalidInputError("missing type")
	assert.Same(t, original, EnsureEnvelope(original))

	nilEnv := EnsureEnvelope(nil)
	assert.Equal(t, core.CodeInternal, nilEnv.Code)
}

func TestRoutePatternUsesChiRoute(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/v1/batches/{batchID}/result", func(w http.ResponseWriter, req *http.Request) {
		pattern = routePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/batches/b-123/result", nil))
	assert.Equal(t, "/v1/batches/{batchID}/result", pattern)

	assert.Empty(t, routePattern(httptest.NewRequest(http.MethodGet, "/v1/batches/b-123", nil)))
}
