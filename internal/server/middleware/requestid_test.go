package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDKeepsUsableHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/batches", nil)
	req.Header.Set(RequestIDHeader, "batch-run-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "batch-run-42", seen)
	assert.Equal(t, "batch-run-42", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"spaces":   "two words",
		"control":  "id\x07bell",
		"too long": strings.Repeat("a", maxRequestIDLength+1),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(RequestIDHeader, header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			_, err := uuid.Parse(seen)
			assert.NoError(t, err, "expected a generated UUID, got %q", seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
