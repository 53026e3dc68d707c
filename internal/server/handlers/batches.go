package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/engine"
	apperrors "github.com/disputekit/disputekit/internal/errors"
)

// BatchService is the batch manager surface exposed over HTTP.
type BatchService interface {
	StartBatch(ctx context.Context, req engine.StartRequest) (string, error)
	Progress(id string) (core.BatchProgressSnapshot, error)
	Subscribe(id string, buffer int) (<-chan core.BatchProgressSnapshot, error)
	Cancel(id string) error
	Result(id string) (*core.BatchResult, error)
	List() []core.BatchProgressSnapshot
}

// BatchHistory loads batches that finished before this process started.
type BatchHistory interface {
	GetBatch(ctx context.Context, id string) (*core.BatchResult, error)
}

// BatchHandler serves /v1/batches.
type BatchHandler struct {
	Batches BatchService
	History BatchHistory
}

// StartBatchResponse is returned when a batch is accepted.
type StartBatchResponse struct {
	BatchID string           `json:"batch_id"`
	Status  core.BatchStatus `json:"status"`
	Total   int              `json:"total"`
}

// Start accepts a batch and returns before any client is processed.
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req engine.StartRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid batch request body"))
		return
	}

	id, err := h.Batches.StartBatch(r.Context(), req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := StartBatchResponse{BatchID: id, Status: core.BatchCreated, Total: len(req.Selections)}
	if snap, err := h.Batches.Progress(id); err == nil {
		resp.Status = snap.Status
		resp.Total = snap.Total
	}
	w.Header().Set("Location", "/v1/batches/"+id)
	writeJSON(w, http.StatusAccepted, resp)
}

// List returns progress for batches known to this process.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"batches": h.Batches.List()})
}

// Progress returns the current snapshot for a batch.
func (h *BatchHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	snap, err := h.Batches.Progress(id)
	if err != nil {
		result, histErr := h.fromHistory(r.Context(), id, err)
		if histErr != nil {
			respondWithError(w, r, histErr)
			return
		}
		snap = snapshotFromResult(result)
	}
	writeJSON(w, http.StatusOK, snap)
}

// Events streams progress snapshots as server-sent events until the batch
// finishes or the client disconnects.
func (h *BatchHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, r, apperrors.NewInternalError("streaming is not supported by this connection"))
		return
	}

	updates, err := h.Batches.Subscribe(id, 16)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Cancel stops dispatch for a running batch.
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	if err := h.Batches.Cancel(id); err != nil {
		respondWithError(w, r, err)
		return
	}
	snap, err := h.Batches.Progress(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Result returns the final result, or 409 while the batch is running.
func (h *BatchHandler) Result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	result, err := h.Batches.Result(id)
	if err != nil {
		result, err = h.fromHistory(r.Context(), id, err)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		// Batches running in another process are stored before they finish.
		if !result.Status.Terminal() {
			respondWithError(w, r, engine.ErrBatchNotTerminal)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// fromHistory falls back to stored batches when the manager does not know id.
func (h *BatchHandler) fromHistory(ctx context.Context, id string, cause error) (*core.BatchResult, error) {
	var notFound *core.NotFoundError
	if h.History == nil || !stderrors.As(cause, &notFound) {
		return nil, cause
	}
	return h.History.GetBatch(ctx, id)
}

func snapshotFromResult(result *core.BatchResult) core.BatchProgressSnapshot {
	snap := core.BatchProgressSnapshot{
		BatchID:   result.BatchID,
		Status:    result.Status,
		Total:     result.Total,
		Completed: result.SucceededCount + result.FailedCount,
		Succeeded: result.SucceededCount,
		Failed:    result.FailedCount,
		UpdatedAt: result.StartedAt,
	}
	if result.FinishedAt != nil {
		snap.UpdatedAt = *result.FinishedAt
	}
	return snap
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return stderrors.New("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if stderrors.Is(err, io.EOF) {
			return stderrors.New("request body is required")
		}
		return err
	}
	if dec.More() {
		return stderrors.New("request body must contain a single JSON object")
	}
	return nil
}
