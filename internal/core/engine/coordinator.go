package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
	"github.com/disputekit/disputekit/internal/metrics"
)

// DefaultConcurrency bounds in-flight client pipelines when none is configured.
const DefaultConcurrency = 5

// Batch is one validated batch run request.
type Batch struct {
	ID         string
	Template   *core.Template
	Selections []core.ClientSelection
	Config     core.DisputeConfig
}

// Coordinator fans a batch out over a bounded worker pool. Per-client
// failures are recorded as item results and never stop other clients.
type Coordinator struct {
	Clients     ClientStore
	Renderer    *letter.Renderer
	Submitter   *Submitter
	Concurrency int
	Retry       RetryConfig
	Logger      *logging.Logger
	Clock       func() time.Time
	// OnItem, when set, observes each item result as it is recorded, along
	// with the batch header counts that include it.
	OnItem func(header core.BatchResult, item core.JobItemResult)
}

type batchJob struct {
	selection core.ClientSelection
}

// Run processes every selection in batch. Cancelling ctx stops dispatch of
// new clients; pipelines already started finish on a detached context.
func (c *Coordinator) Run(ctx context.Context, batch Batch, progress *ProgressReporter) *core.BatchResult {
	return c.run(ctx, batch, progress, nil)
}

// run is Run with a publish hook that sees the final result before progress
// turns terminal.
func (c *Coordinator) run(ctx context.Context, batch Batch, progress *ProgressReporter, publish func(*core.BatchResult)) *core.BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = NewProgressReporter(batch.ID, len(batch.Selections), c.Clock)
	}

	started := c.now()
	agg := &aggregator{
		result: &core.BatchResult{
			BatchID:   batch.ID,
			Status:    core.BatchCreated,
			Total:     len(batch.Selections),
			Items:     make([]core.JobItemResult, 0, len(batch.Selections)),
			StartedAt: started,
		},
		progress: progress,
		onItem:   c.OnItem,
		publish:  publish,
	}
	if batch.Template != nil {
		agg.result.TemplateID = batch.Template.ID
	}

	c.logInfo("Batch started",
		zap.String("batch_id", batch.ID),
		zap.Int("clients", len(batch.Selections)),
		zap.Int("concurrency", c.concurrency(len(batch.Selections))))

	clients, missing, loadErr := c.loadClients(ctx, batch.Selections)

	workCtx := context.WithoutCancel(ctx)
	jobs := make(chan batchJob)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			if ctx.Err() != nil {
				continue
			}
			agg.begin(job.selection.ClientID)
			item := c.process(workCtx, batch, job.selection, clients, missing, loadErr)
			agg.record(item)
		}
	}

	workers := c.concurrency(len(batch.Selections))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for _, sel := range batch.Selections {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- batchJob{selection: sel}:
		}
	}
	close(jobs)
	wg.Wait()

	result := agg.finish(c.now())
	duration := c.now().Sub(started)
	metrics.RecordBatchRun(string(result.Status), duration)

	c.logInfo("Batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(result.Status)),
		zap.Int("succeeded", result.SucceededCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("total", result.Total),
		zap.Duration("duration", duration))

	return result
}

func (c *Coordinator) loadClients(ctx context.Context, selections []core.ClientSelection) (map[string]core.ClientContext, map[string]string, error) {
	if c.Clients == nil {
		return nil, nil, fmt.Errorf("client store not configured")
	}
	ids := make([]string, 0, len(selections))
	for _, sel := range selections {
		ids = append(ids, sel.ClientID)
	}
	clients, missingList, err := c.Clients.ListSelected(ctx, ids)
	if err != nil {
		c.logWarn("Client lookup failed", zap.Error(err))
		return nil, nil, err
	}
	missing := make(map[string]string, len(missingList))
	for _, m := range missingList {
		missing[m.ClientID] = m.Reason
	}
	return clients, missing, nil
}

// process runs one client's pipeline. It never panics.
func (c *Coordinator) process(
	ctx context.Context,
	batch Batch,
	sel core.ClientSelection,
	clients map[string]core.ClientContext,
	missing map[string]string,
	loadErr error,
) (item core.JobItemResult) {
	item = core.JobItemResult{ClientID: sel.ClientID}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPanic()
			c.logError("Client pipeline panicked",
				zap.String("batch_id", batch.ID),
				zap.String("client_id", sel.ClientID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			item = c.failed(item, fmt.Errorf("internal error: %v", r))
		}
	}()

	if loadErr != nil {
		return c.failed(item, &core.TransientUnavailableError{Err: loadErr})
	}
	client, ok := clients[sel.ClientID]
	if !ok {
		err := &core.NotFoundError{Kind: "client", ID: sel.ClientID}
		if reason := missing[sel.ClientID]; reason != "" {
			return c.failedWithMessage(item, err, fmt.Sprintf("%s: %s", err.Error(), reason))
		}
		return c.failed(item, err)
	}
	if client.ClientID == "" {
		client.ClientID = sel.ClientID
	}

	letters, err := c.Renderer.Render(batch.Template, client, sel, batch.Config)
	if err != nil {
		return c.failed(item, err)
	}

	var firstErr error
	for _, l := range letters {
		for _, warning := range l.Warnings {
			item.Warnings = append(item.Warnings, l.Bureau.DisplayName()+": "+warning)
		}
		req := c.buildRequest(batch, sel, l)

		var dispute *core.Dispute
		res := RetryWithBackoff(ctx, c.Retry, core.IsTransient, func(ctx context.Context) error {
			var submitErr error
			dispute, submitErr = c.Submitter.Submit(ctx, req)
			return submitErr
		})
		item.Attempts += res.Attempts
		metrics.RecordSubmitRetries(res.Attempts - 1)
		if res.Attempts > 1 {
			c.logDebug("Submission retried",
				zap.String("client_id", sel.ClientID),
				zap.String("bureau", string(l.Bureau)),
				zap.Int("attempts", res.Attempts))
		}

		if dup, ok := asDuplicate(res.LastErr); ok {
			item.Duplicate = true
			item.DisputeIDs = append(item.DisputeIDs, dup.ExistingID)
			item.Bureaus = append(item.Bureaus, l.Bureau)
			metrics.RecordDisputeCreated(string(l.Bureau), true)
			continue
		}
		if res.LastErr != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", l.Bureau.DisplayName(), res.LastErr)
			}
			continue
		}
		item.DisputeIDs = append(item.DisputeIDs, dispute.ID)
		item.Bureaus = append(item.Bureaus, l.Bureau)
		metrics.RecordDisputeCreated(string(l.Bureau), false)
	}

	if firstErr != nil {
		return c.failed(item, firstErr)
	}
	item.Status = core.ItemSucceeded
	item.CompletedAt = c.now()
	return item
}

func (c *Coordinator) buildRequest(batch Batch, sel core.ClientSelection, l core.RenderedLetter) core.DisputeRequest {
	accounts := make([]string, 0, len(sel.Items))
	for _, it := range sel.Items {
		if core.NormalizeBureau(string(it.Bureau)) == l.Bureau && it.AccountNumber != "" {
			accounts = append(accounts, core.MaskAccountNumber(it.AccountNumber))
		}
	}

	disputeType := batch.Config.Type
	if disputeType == "" && batch.Template != nil {
		disputeType = batch.Template.Type
	}
	priority := batch.Config.Priority
	if priority == "" {
		priority = core.PriorityMedium
	}

	return core.DisputeRequest{
		BatchID:        batch.ID,
		ClientID:       sel.ClientID,
		TemplateID:     batch.Template.ID,
		Type:           disputeType,
		Priority:       priority,
		Bureau:         l.Bureau,
		Reason:         batch.Config.Reason,
		Description:    batch.Config.Description,
		DueDate:        batch.Config.DueDate,
		Subject:        l.Subject,
		LetterContent:  l.Body,
		AccountNumbers: accounts,
		Reference:      l.Reference,
	}
}

func (c *Coordinator) failed(item core.JobItemResult, err error) core.JobItemResult {
	return c.failedWithMessage(item, err, err.Error())
}

func (c *Coordinator) failedWithMessage(item core.JobItemResult, err error, msg string) core.JobItemResult {
	item.Status = core.ItemFailed
	item.Error = msg
	item.ErrorCode = core.ErrorCode(err)
	item.CompletedAt = c.now()
	c.logWarn("Client failed",
		zap.String("client_id", item.ClientID),
		zap.String("error_code", item.ErrorCode),
		zap.String("error", msg))
	return item
}

func asDuplicate(err error) (*core.DuplicateDetectedError, bool) {
	var dup *core.DuplicateDetectedError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

func (c *Coordinator) concurrency(total int) int {
	n := c.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	if total > 0 && n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (c *Coordinator) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Coordinator) logInfo(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *Coordinator) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func (c *Coordinator) logError(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Error(msg, fields...)
	}
}

func (c *Coordinator) logDebug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

// aggregator is the single writer of a batch's result. Progress is updated
// under the same lock so snapshots never run ahead of the result.
type aggregator struct {
	mu       sync.Mutex
	result   *core.BatchResult
	progress *ProgressReporter
	onItem   func(core.BatchResult, core.JobItemResult)
	publish  func(*core.BatchResult)
}

func (a *aggregator) begin(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result.Status == core.BatchCreated {
		a.result.Status = core.BatchRunning
	}
	a.progress.Begin(clientID)
}

func (a *aggregator) record(item core.JobItemResult) {
	a.mu.Lock()
	a.result.Items = append(a.result.Items, item)
	if item.Status == core.ItemSucceeded {
		a.result.SucceededCount++
	} else {
		a.result.FailedCount++
	}
	a.progress.Record(item.ClientID, item.Status)
	header := *a.result
	header.Items = nil
	a.mu.Unlock()

	metrics.RecordBatchItem(string(item.Status), item.ErrorCode)
	if a.onItem != nil {
		a.onItem(header, item)
	}
}

func (a *aggregator) finish(at time.Time) *core.BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result.Completed() == a.result.Total {
		a.result.Status = core.BatchCompleted
	} else {
		a.result.Status = core.BatchCancelled
	}
	a.result.FinishedAt = &at
	if a.publish != nil {
		a.publish(a.result.Clone())
	}
	a.progress.Finish(a.result.Status)
	return a.result.Clone()
}
