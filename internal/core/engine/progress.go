package engine

import (
	"sync"
	"time"

	"github.com/disputekit/disputekit/internal/core"
)

// ProgressReporter publishes batch progress. Counts only grow, and the
// terminal snapshot is always delivered to subscribers before their channel
// closes.
type ProgressReporter struct {
	mu    sync.RWMutex
	snap  core.BatchProgressSnapshot
	subs  []chan core.BatchProgressSnapshot
	done  bool
	clock func() time.Time
}

// NewProgressReporter starts a reporter in the Created state.
func NewProgressReporter(batchID string, total int, clock func() time.Time) *ProgressReporter {
	if clock == nil {
		clock = time.Now
	}
	return &ProgressReporter{
		clock: clock,
		snap: core.BatchProgressSnapshot{
			BatchID:   batchID,
			Status:    core.BatchCreated,
			Total:     total,
			UpdatedAt: clock(),
		},
	}
}

// Snapshot returns the current progress.
func (p *ProgressReporter) Snapshot() core.BatchProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Begin marks clientID as being processed and moves a Created batch to Running.
func (p *ProgressReporter) Begin(clientID string) {
	p.update(func(s *core.BatchProgressSnapshot) {
		if s.Status == core.BatchCreated {
			s.Status = core.BatchRunning
		}
		s.Current = clientID
	})
}

// Record counts one terminal item for clientID.
func (p *ProgressReporter) Record(clientID string, status core.ItemStatus) {
	p.update(func(s *core.BatchProgressSnapshot) {
		s.Completed++
		s.LastClientID = clientID
		s.LastStatus = status
		if s.Current == clientID {
			s.Current = ""
		}
		if status == core.ItemSucceeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	})
}

// Finish publishes the terminal status and closes all subscriptions.
func (p *ProgressReporter) Finish(status core.BatchStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.snap.Status = status
	p.snap.Current = ""
	p.snap.UpdatedAt = p.clock()

	for _, ch := range p.subs {
		deliverTerminal(ch, p.snap)
		close(ch)
	}
	p.subs = nil
}

// Subscribe returns a channel of snapshots. Intermediate snapshots are
// dropped when the buffer is full.
func (p *ProgressReporter) Subscribe(buffer int) <-chan core.BatchProgressSnapshot {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan core.BatchProgressSnapshot, buffer)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		ch <- p.snap
		close(ch)
		return ch
	}
	ch <- p.snap
	p.subs = append(p.subs, ch)
	return ch
}

func (p *ProgressReporter) update(fn func(*core.BatchProgressSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	fn(&p.snap)
	p.snap.UpdatedAt = p.clock()
	for _, ch := range p.subs {
		select {
		case ch <- p.snap:
		default:
		}
	}
}

// deliverTerminal makes room by discarding the oldest queued snapshot.
func deliverTerminal(ch chan core.BatchProgressSnapshot, snap core.BatchProgressSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
