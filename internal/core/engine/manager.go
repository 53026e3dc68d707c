package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/metrics"
)

// ErrBatchNotTerminal is returned by Result while a batch is still running.
var ErrBatchNotTerminal = errors.New("batch has not finished")

// DefaultDueDays is the due-date offset applied when a batch sets none.
const DefaultDueDays = 30

// StartRequest describes a batch to run.
type StartRequest struct {
	TemplateID string                 `json:"template_id" yaml:"template_id"`
	Selections []core.ClientSelection `json:"selections" yaml:"selections"`
	Config     core.DisputeConfig     `json:"config" yaml:"config"`
}

// BatchRecorder persists batch runs and their items as they complete.
type BatchRecorder interface {
	SaveBatch(ctx context.Context, result *core.BatchResult) error
	SaveBatchItem(ctx context.Context, batchID string, item core.JobItemResult) error
}

// Manager owns running batches and exposes their progress and results.
type Manager struct {
	Templates   TemplateStore
	Coordinator *Coordinator
	Recorder    BatchRecorder
	DueDays     int
	Logger      *logging.Logger
	Clock       func() time.Time
	NewID       func() string

	mu   sync.RWMutex
	runs map[string]*batchRun
}

type batchRun struct {
	progress *ProgressReporter
	cancel   context.CancelFunc
	done     chan struct{}
	result   *core.BatchResult
}

// NewManager wires a manager around coordinator. recorder may be nil.
func NewManager(templates TemplateStore, coordinator *Coordinator, recorder BatchRecorder) *Manager {
	m := &Manager{
		Templates:   templates,
		Coordinator: coordinator,
		Recorder:    recorder,
		DueDays:     DefaultDueDays,
		runs:        make(map[string]*batchRun),
	}
	if recorder != nil && coordinator != nil && coordinator.OnItem == nil {
		coordinator.OnItem = func(header core.BatchResult, item core.JobItemResult) {
			ctx := context.Background()
			if err := recorder.SaveBatchItem(ctx, header.BatchID, item); err != nil {
				m.logWarn("Failed to persist batch item",
					zap.String("batch_id", header.BatchID),
					zap.String("client_id", item.ClientID),
					zap.Error(err))
			}
			if err := recorder.SaveBatch(ctx, &header); err != nil {
				m.logWarn("Failed to persist batch progress", zap.String("batch_id", header.BatchID), zap.Error(err))
			}
		}
	}
	return m
}

// StartBatch validates req, resolves the template and starts the batch in the
// background. A missing or inactive template fails here, before any item runs.
func (m *Manager) StartBatch(ctx context.Context, req StartRequest) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.Coordinator == nil {
		return "", fmt.Errorf("batch coordinator not configured")
	}
	selections, err := normalizeSelections(req.Selections)
	if err != nil {
		return "", err
	}

	tpl, err := m.loadTemplate(ctx, req.TemplateID)
	if err != nil {
		return "", err
	}

	cfg := req.Config
	if cfg.Type == "" {
		cfg.Type = tpl.Type
	}
	if cfg.Priority == "" {
		cfg.Priority = core.PriorityMedium
	}
	if cfg.DueDate.IsZero() {
		days := m.DueDays
		if days <= 0 {
			days = DefaultDueDays
		}
		cfg.DueDate = m.now().AddDate(0, 0, days)
	}

	id := m.newID()
	batch := Batch{
		ID:         id,
		Template:   tpl,
		Selections: selections,
		Config:     cfg,
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &batchRun{
		progress: NewProgressReporter(id, len(batch.Selections), m.Clock),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.runs == nil {
		m.runs = make(map[string]*batchRun)
	}
	m.runs[id] = run
	m.mu.Unlock()
	m.reportActive()

	if m.Recorder != nil {
		initial := &core.BatchResult{
			BatchID:    id,
			TemplateID: tpl.ID,
			Status:     core.BatchCreated,
			Total:      len(batch.Selections),
			StartedAt:  m.now(),
		}
		if err := m.Recorder.SaveBatch(ctx, initial); err != nil {
			m.logWarn("Failed to persist batch", zap.String("batch_id", id), zap.Error(err))
		}
	}

	go m.execute(runCtx, batch, run)
	return id, nil
}

// execute publishes the result before progress turns terminal, so a terminal
// snapshot always has a result behind it. Persistence follows.
func (m *Manager) execute(ctx context.Context, batch Batch, run *batchRun) {
	defer run.cancel()
	result := m.Coordinator.run(ctx, batch, run.progress, func(final *core.BatchResult) {
		m.mu.Lock()
		run.result = final
		m.mu.Unlock()
	})
	m.reportActive()

	if m.Recorder != nil {
		if err := m.Recorder.SaveBatch(context.Background(), result); err != nil {
			m.logWarn("Failed to persist batch result", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}
	close(run.done)
}

// Progress returns the current snapshot for id.
func (m *Manager) Progress(id string) (core.BatchProgressSnapshot, error) {
	run, err := m.lookup(id)
	if err != nil {
		return core.BatchProgressSnapshot{}, err
	}
	return run.progress.Snapshot(), nil
}

// Subscribe streams progress snapshots for id until the batch finishes.
func (m *Manager) Subscribe(id string, buffer int) (<-chan core.BatchProgressSnapshot, error) {
	run, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return run.progress.Subscribe(buffer), nil
}

// Cancel stops dispatch of new clients for id. Cancelling a finished batch
// is a no-op.
func (m *Manager) Cancel(id string) error {
	run, err := m.lookup(id)
	if err != nil {
		return err
	}
	run.cancel()
	m.logInfo("Batch cancellation requested", zap.String("batch_id", id))
	return nil
}

// Result returns the final result, or ErrBatchNotTerminal while running.
func (m *Manager) Result(id string) (*core.BatchResult, error) {
	run, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if run.result == nil {
		return nil, ErrBatchNotTerminal
	}
	return run.result.Clone(), nil
}

// Wait blocks until id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*core.BatchResult, error) {
	run, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-run.done:
		return m.Result(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// List returns snapshots of all known batches ordered by batch ID.
func (m *Manager) List() []core.BatchProgressSnapshot {
	m.mu.RLock()
	snaps := make([]core.BatchProgressSnapshot, 0, len(m.runs))
	for _, run := range m.runs {
		snaps = append(snaps, run.progress.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].BatchID < snaps[j].BatchID })
	return snaps
}

func (m *Manager) lookup(id string) (*batchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "batch", ID: id}
	}
	return run, nil
}

func (m *Manager) loadTemplate(ctx context.Context, id string) (*core.Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &core.ValidationRejectedError{Field: "template_id", Reason: "is required"}
	}
	if m.Templates == nil {
		return nil, fmt.Errorf("template store not configured")
	}
	tpl, err := m.Templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, &core.NotFoundError{Kind: "template", ID: id}
	}
	if !tpl.IsActive {
		return nil, &core.ValidationRejectedError{Field: "template_id", Reason: "template is inactive"}
	}
	return tpl, nil
}

// normalizeSelections returns a copy of selections with trimmed client IDs,
// rejecting empty and repeated ones.
func normalizeSelections(selections []core.ClientSelection) ([]core.ClientSelection, error) {
	if len(selections) == 0 {
		return nil, &core.ValidationRejectedError{Field: "selections", Reason: "at least one client is required"}
	}
	out := make([]core.ClientSelection, len(selections))
	seen := make(map[string]struct{}, len(selections))
	for i, sel := range selections {
		id := strings.TrimSpace(sel.ClientID)
		if id == "" {
			return nil, &core.ValidationRejectedError{Field: "client_id", Reason: "is required"}
		}
		if _, ok := seen[id]; ok {
			return nil, &core.ValidationRejectedError{Field: "client_id", Reason: fmt.Sprintf("client %s selected more than once", id)}
		}
		seen[id] = struct{}{}
		sel.ClientID = id
		out[i] = sel
	}
	return out, nil
}

func (m *Manager) reportActive() {
	m.mu.RLock()
	active := 0
	for _, run := range m.runs {
		if run.result == nil {
			active++
		}
	}
	m.mu.RUnlock()
	metrics.SetActiveBatches(active)
}

func (m *Manager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Manager) logInfo(msg string, fields ...zap.Field) {
	if m.Logger != nil {
		m.Logger.Info(msg, fields...)
	}
}

func (m *Manager) logWarn(msg string, fields ...zap.Field) {
	if m.Logger != nil {
		m.Logger.Warn(msg, fields...)
	}
}
