package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
)

type fakeTemplates map[string]*core.Template

func (f fakeTemplates) GetTemplate(_ context.Context, id string) (*core.Template, error) {
	tpl, ok := f[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "template", ID: id}
	}
	return tpl, nil
}

type fakeClients struct {
	clients map[string]core.ClientContext
	err     error
}

func (f *fakeClients) ListSelected(_ context.Context, ids []string) (map[string]core.ClientContext, []core.MissingClient, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	found := make(map[string]core.ClientContext)
	var missing []core.MissingClient
	for _, id := range ids {
		if c, ok := f.clients[id]; ok {
			found[id] = c
			continue
		}
		missing = append(missing, core.MissingClient{ClientID: id, Reason: "no such client"})
	}
	return found, missing, nil
}

// fakeRepo records requests. behave, when set, can fail a call; call is the
// 1-based attempt number for that client and bureau.
type fakeRepo struct {
	mu       sync.Mutex
	calls    map[string]int
	requests []core.DisputeRequest
	behave   func(req core.DisputeRequest, call int) error
	gate     chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{calls: make(map[string]int)}
}

func (f *fakeRepo) CreateDispute(_ context.Context, req core.DisputeRequest) (*core.Dispute, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	key := req.ClientID + "/" + string(req.Bureau)
	f.calls[key]++
	call := f.calls[key]
	behave := f.behave
	f.mu.Unlock()

	if behave != nil {
		if err := behave(req, call); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &core.Dispute{
		DisputeRequest: req,
		ID:             fmt.Sprintf("d-%s-%s", req.ClientID, req.Bureau),
		Status:         core.DisputeStatusDraft,
	}, nil
}

func (f *fakeRepo) callsFor(clientID string, bureau core.Bureau) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[clientID+"/"+string(bureau)]
}

func (f *fakeRepo) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches []core.BatchResult
	items   []core.JobItemResult
}

func (f *fakeRecorder) SaveBatch(_ context.Context, result *core.BatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, *result.Clone())
	return nil
}

func (f *fakeRecorder) SaveBatchItem(_ context.Context, _ string, item core.JobItemResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

var testNow = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func testTemplate() *core.Template {
	return &core.Template{
		ID:       "tpl-1",
		Name:     "Account dispute",
		Type:     core.DisputeTypeAccount,
		Subject:  "Dispute {{dispute_reference}}",
		Body:     "Dear {{bureau_name}},\n{{client_name}} disputes account {{account_number}}.",
		IsActive: true,
	}
}

func testClient(id string) core.ClientContext {
	return core.ClientContext{ClientID: id, FirstName: "Client", LastName: id}
}

func testSelection(id string, bureaus ...core.Bureau) core.ClientSelection {
	if len(bureaus) == 0 {
		bureaus = []core.Bureau{core.BureauExperian}
	}
	sel := core.ClientSelection{ClientID: id}
	for i, b := range bureaus {
		sel.Items = append(sel.Items, core.DisputeItem{
			ItemID:        fmt.Sprintf("%s-item-%d", id, i),
			AccountName:   "Card",
			AccountNumber: fmt.Sprintf("400012341234%04d", i),
			Bureau:        b,
		})
	}
	return sel
}

func testRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BackoffMultiply: 2,
	}
}

func newTestCoordinator(clients map[string]core.ClientContext, repo *fakeRepo, concurrency int) *Coordinator {
	resolver := &letter.Resolver{Now: testClock}
	return &Coordinator{
		Clients:     &fakeClients{clients: clients},
		Renderer:    &letter.Renderer{Resolver: resolver, NextReference: letter.ReferenceSequence(0, testClock)},
		Submitter:   NewSubmitter(repo, 0),
		Concurrency: concurrency,
		Retry:       testRetry(),
		Clock:       testClock,
	}
}

func clientsFor(ids ...string) map[string]core.ClientContext {
	clients := make(map[string]core.ClientContext, len(ids))
	for _, id := range ids {
		clients[id] = testClient(id)
	}
	return clients
}

func itemsByClient(result *core.BatchResult) map[string]core.JobItemResult {
	out := make(map[string]core.JobItemResult, len(result.Items))
	for _, item := range result.Items {
		out[item.ClientID] = item
	}
	return out
}
