package core

import (
	"sort"
	"time"
)

// BatchStatus is the state of a batch run.
type BatchStatus string

const (
	BatchCreated   BatchStatus = "created"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// Terminal reports whether no further items will complete.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled
}

// ItemStatus is the outcome of one client's pipeline.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// JobItemResult captures the outcome for a single client in a batch.
type JobItemResult struct {
	ClientID   string     `json:"client_id"`
	Status     ItemStatus `json:"status"`
	DisputeIDs []string   `json:"dispute_ids,omitempty"`
	Bureaus    []Bureau   `json:"bureaus,omitempty"`
	Duplicate  bool       `json:"duplicate,omitempty"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	// Warnings are content findings on letters that were still sent.
	Warnings    []string  `json:"warnings,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// BatchResult aggregates item outcomes for a batch run.
// Items are recorded in completion order.
type BatchResult struct {
	BatchID        string          `json:"batch_id"`
	TemplateID     string          `json:"template_id"`
	Status         BatchStatus     `json:"status"`
	Total          int             `json:"total"`
	SucceededCount int             `json:"succeeded_count"`
	FailedCount    int             `json:"failed_count"`
	Items          []JobItemResult `json:"items"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// Completed returns the number of items with a terminal outcome.
func (r *BatchResult) Completed() int {
	if r == nil {
		return 0
	}
	return r.SucceededCount + r.FailedCount
}

// Clone returns a deep copy safe to hand to callers.
func (r *BatchResult) Clone() *BatchResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Items = make([]JobItemResult, len(r.Items))
	for i, item := range r.Items {
		item.DisputeIDs = append([]string(nil), item.DisputeIDs...)
		item.Bureaus = append([]Bureau(nil), item.Bureaus...)
		item.Warnings = append([]string(nil), item.Warnings...)
		out.Items[i] = item
	}
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		out.FinishedAt = &finished
	}
	return &out
}

// SortedByClient returns items ordered by client ID for callers that need a
// stable order rather than completion order.
func (r *BatchResult) SortedByClient() []JobItemResult {
	if r == nil {
		return nil
	}
	items := append([]JobItemResult(nil), r.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ClientID < items[j].ClientID
	})
	return items
}

// BureauCounts tallies created disputes per bureau across succeeded items.
func (r *BatchResult) BureauCounts() map[Bureau]int {
	counts := make(map[Bureau]int)
	if r == nil {
		return counts
	}
	for _, item := range r.Items {
		if item.Status != ItemSucceeded {
			continue
		}
		for _, b := range item.Bureaus {
			counts[b]++
		}
	}
	return counts
}

// BatchProgressSnapshot is the observable progress of a batch.
type BatchProgressSnapshot struct {
	BatchID   string      `json:"batch_id"`
	Status    BatchStatus `json:"status"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Current   string      `json:"current,omitempty"`
	// LastClientID and LastStatus describe the most recently finished client.
	LastClientID string     `json:"last_client_id,omitempty"`
	LastStatus   ItemStatus `json:"last_status,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
