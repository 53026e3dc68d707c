package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/core"
)

func runBatch(t *testing.T, coord *Coordinator, selections ...core.ClientSelection) *core.BatchResult {
	t.Helper()
	batch := Batch{ID: "b1", Template: testTemplate(), Selections: selections, Config: core.DisputeConfig{Reason: "Not mine"}}
	return coord.Run(context.Background(), batch, nil)
}

func TestCoordinatorAllSucceed(t *testing.T) {
	repo := newFakeRepo()
	coord := newTestCoordinator(clientsFor("c1", "c2", "c3"), repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"), testSelection("c3"))

	require.Equal(t, core.BatchCompleted, result.Status)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.SucceededCount)
	require.Equal(t, 0, result.FailedCount)
	require.Len(t, result.Items, 3)
	require.NotNil(t, result.FinishedAt)
	require.Equal(t, "tpl-1", result.TemplateID)

	for _, item := range result.Items {
		require.Equal(t, core.ItemSucceeded, item.Status)
		require.Equal(t, 1, item.Attempts)
		require.Equal(t, []string{fmt.Sprintf("d-%s-experian", item.ClientID)}, item.DisputeIDs)
		require.Equal(t, []core.Bureau{core.BureauExperian}, item.Bureaus)
	}
	require.Equal(t, 3, repo.requestCount())

	req := repo.requests[0]
	require.Equal(t, "b1", req.BatchID)
	require.Equal(t, core.DisputeTypeAccount, req.Type)
	require.Equal(t, core.PriorityMedium, req.Priority)
	require.Equal(t, "Not mine", req.Reason)
	require.Contains(t, req.LetterContent, "Dear Experian,")
	require.Equal(t, []string{"****0000"}, req.AccountNumbers)
	require.Regexp(t, `^DSP-2024-\d{6}$`, req.Reference)
}

func TestCoordinatorIsolatesRenderFailure(t *testing.T) {
	repo := newFakeRepo()
	clients := clientsFor("c1", "c3")
	clients["c2"] = core.ClientContext{ClientID: "c2"}
	coord := newTestCoordinator(clients, repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"), testSelection("c3"))

	require.Equal(t, core.BatchCompleted, result.Status)
	require.Len(t, result.Items, 3)
	require.Equal(t, 2, result.SucceededCount)
	require.Equal(t, 1, result.FailedCount)

	failed := itemsByClient(result)["c2"]
	require.Equal(t, core.ItemFailed, failed.Status)
	require.Equal(t, core.CodeTemplateValidation, failed.ErrorCode)
	require.Contains(t, failed.Error, "client_name")
	require.Zero(t, failed.Attempts)
	require.Zero(t, repo.callsFor("c2", core.BureauExperian))
}

func TestCoordinatorRetriesTransientFailures(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, call int) error {
		if req.ClientID == "c2" && call <= 2 {
			return &core.TransientUnavailableError{Err: errors.New("503")}
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1", "c2", "c3"), repo, 3)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"), testSelection("c3"))

	items := itemsByClient(result)
	require.Equal(t, core.ItemSucceeded, items["c2"].Status)
	require.Equal(t, 3, items["c2"].Attempts)
	require.Equal(t, 1, items["c1"].Attempts)
	require.Equal(t, 3, result.SucceededCount)
}

func TestCoordinatorGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.ClientID == "c1" {
			return context.DeadlineExceeded
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1", "c2"), repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"))

	item := itemsByClient(result)["c1"]
	require.Equal(t, core.ItemFailed, item.Status)
	require.Equal(t, core.CodeTransientUnavailable, item.ErrorCode)
	require.Equal(t, 3, item.Attempts)
	require.Equal(t, 3, repo.callsFor("c1", core.BureauExperian))
	require.Equal(t, 1, result.SucceededCount)
}

func TestCoordinatorDoesNotRetryRejections(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.ClientID == "c1" {
			return &core.ValidationRejectedError{Field: "reason", Reason: "too long"}
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1"), repo, 1)

	result := runBatch(t, coord, testSelection("c1"))

	item := result.Items[0]
	require.Equal(t, core.ItemFailed, item.Status)
	require.Equal(t, core.CodeValidationRejected, item.ErrorCode)
	require.Equal(t, 1, item.Attempts)
	require.Contains(t, item.Error, "too long")
}

func TestCoordinatorDuplicateCountsAsSuccess(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.ClientID == "c1" {
			return &core.DuplicateDetectedError{ExistingID: "existing-7", ClientID: "c1", Bureau: req.Bureau}
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1", "c2"), repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"))

	item := itemsByClient(result)["c1"]
	require.Equal(t, core.ItemSucceeded, item.Status)
	require.True(t, item.Duplicate)
	require.Equal(t, []string{"existing-7"}, item.DisputeIDs)
	require.Equal(t, 2, result.SucceededCount)
	require.Equal(t, 0, result.FailedCount)
}

func TestCoordinatorMissingClient(t *testing.T) {
	repo := newFakeRepo()
	coord := newTestCoordinator(clientsFor("c1"), repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("ghost"))

	item := itemsByClient(result)["ghost"]
	require.Equal(t, core.ItemFailed, item.Status)
	require.Equal(t, core.CodeNotFound, item.ErrorCode)
	require.Contains(t, item.Error, "no such client")
	require.Equal(t, 1, result.SucceededCount)
}

func TestCoordinatorClientStoreFailureFailsItems(t *testing.T) {
	repo := newFakeRepo()
	coord := newTestCoordinator(nil, repo, 2)
	coord.Clients = &fakeClients{err: errors.New("connection refused")}

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"))

	require.Equal(t, core.BatchCompleted, result.Status)
	require.Equal(t, 2, result.FailedCount)
	for _, item := range result.Items {
		require.Equal(t, core.CodeTransientUnavailable, item.ErrorCode)
	}
}

func TestCoordinatorRecoversPanics(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.ClientID == "c2" {
			panic("boom")
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1", "c2", "c3"), repo, 2)

	result := runBatch(t, coord, testSelection("c1"), testSelection("c2"), testSelection("c3"))

	require.Len(t, result.Items, 3)
	item := itemsByClient(result)["c2"]
	require.Equal(t, core.ItemFailed, item.Status)
	require.Equal(t, core.CodeInternal, item.ErrorCode)
	require.Contains(t, item.Error, "boom")
	require.Equal(t, 2, result.SucceededCount)
}

func TestCoordinatorMultiBureauPartialFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.Bureau == core.BureauEquifax {
			return &core.ValidationRejectedError{Reason: "bureau offline for manual review"}
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor("c1"), repo, 1)

	result := runBatch(t, coord, testSelection("c1", core.BureauExperian, core.BureauEquifax))

	item := result.Items[0]
	require.Equal(t, core.ItemFailed, item.Status)
	require.Equal(t, []string{"d-c1-experian"}, item.DisputeIDs)
	require.Equal(t, []core.Bureau{core.BureauExperian}, item.Bureaus)
	require.Equal(t, 2, item.Attempts)
	require.Contains(t, item.Error, "Equifax")
}

func TestCoordinatorBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	repo := newFakeRepo()
	repo.behave = func(core.DisputeRequest, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		return nil
	}

	ids := make([]string, 12)
	selections := make([]core.ClientSelection, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%02d", i)
		selections[i] = testSelection(ids[i])
	}
	coord := newTestCoordinator(clientsFor(ids...), repo, 3)

	result := runBatch(t, coord, selections...)
	require.Equal(t, 12, result.SucceededCount)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestCoordinatorCancellation(t *testing.T) {
	ids := make([]string, 10)
	selections := make([]core.ClientSelection, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%02d", i)
		selections[i] = testSelection(ids[i])
	}

	repo := newFakeRepo()
	coord := newTestCoordinator(clientsFor(ids...), repo, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu        sync.Mutex
		completed int
	)
	coord.OnItem = func(core.BatchResult, core.JobItemResult) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if completed == 3 {
			cancel()
		}
	}

	progress := NewProgressReporter("b-cancel", len(selections), testClock)
	result := coord.Run(ctx, Batch{ID: "b-cancel", Template: testTemplate(), Selections: selections}, progress)

	require.Equal(t, core.BatchCancelled, result.Status)
	require.Equal(t, 10, result.Total)
	require.GreaterOrEqual(t, result.Completed(), 3)
	require.LessOrEqual(t, result.Completed(), 4)
	require.Len(t, result.Items, result.Completed())
	require.Equal(t, result.Completed(), repo.requestCount())

	snap := progress.Snapshot()
	assert.Equal(t, core.BatchCancelled, snap.Status)
	assert.Equal(t, result.Completed(), snap.Completed)
}

func TestCoordinatorProgressStreamMatchesResult(t *testing.T) {
	const clients = 20
	ids := make([]string, 0, clients)
	selections := make([]core.ClientSelection, 0, clients)
	for i := 0; i < clients; i++ {
		id := fmt.Sprintf("c%02d", i)
		ids = append(ids, id)
		selections = append(selections, testSelection(id))
	}

	repo := newFakeRepo()
	repo.behave = func(req core.DisputeRequest, _ int) error {
		if req.ClientID == "c03" || req.ClientID == "c11" {
			return &core.ValidationRejectedError{Field: "reason", Reason: "rejected"}
		}
		return nil
	}
	coord := newTestCoordinator(clientsFor(ids...), repo, 4)

	progress := NewProgressReporter("b-stream", clients, testClock)
	updates := progress.Subscribe(clients * 2)
	var snaps []core.BatchProgressSnapshot
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for snap := range updates {
			snaps = append(snaps, snap)
		}
	}()

	result := coord.Run(context.Background(), Batch{ID: "b-stream", Template: testTemplate(), Selections: selections}, progress)
	<-drained

	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1], snaps[i]
		assert.GreaterOrEqual(t, cur.Completed, prev.Completed)
		assert.GreaterOrEqual(t, cur.Succeeded, prev.Succeeded)
		assert.GreaterOrEqual(t, cur.Failed, prev.Failed)
		assert.Equal(t, cur.Completed, cur.Succeeded+cur.Failed)
	}

	last := snaps[len(snaps)-1]
	assert.Equal(t, result.Status, last.Status)
	assert.Equal(t, core.BatchCompleted, last.Status)
	assert.Equal(t, result.Completed(), last.Completed)
	assert.Equal(t, result.SucceededCount, last.Succeeded)
	assert.Equal(t, result.FailedCount, last.Failed)
	assert.Equal(t, 18, last.Succeeded)
	assert.Equal(t, 2, last.Failed)
}
