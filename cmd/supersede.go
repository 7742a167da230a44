package main

import (
	"context"
	"sync"
)

// retrievalTracker serializes retrievals per display context: starting a new
// retrieval for a key cancels the one in flight, and lets the old one find out
// that its result must be discarded.  the lock is only held for bookkeeping.
type retrievalTracker struct {
	mu       sync.Mutex
	next     uint64
	inflight map[string]*retrieval
}

type retrieval struct {
	generation uint64
	cancel     context.CancelFunc
}

type retrievalTicket struct {
	tracker    *retrievalTracker
	key        string
	generation uint64
	cancel     context.CancelFunc
}

func newRetrievalTracker() *retrievalTracker {
	return &retrievalTracker{inflight: make(map[string]*retrieval)}
}

// begin registers a retrieval for key.  an empty key opts out of tracking.
func (t *retrievalTracker) begin(ctx context.Context, key string) (context.Context, *retrievalTicket) {
	rctx, cancel := context.WithCancel(ctx)

	if key == "" {
		return rctx, &retrievalTicket{cancel: cancel}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++

	if prev := t.inflight[key]; prev != nil {
		prev.cancel()
		supersededRetrievals.Inc()
	}

	t.inflight[key] = &retrieval{generation: t.next, cancel: cancel}

	return rctx, &retrievalTicket{tracker: t, key: key, generation: t.next, cancel: cancel}
}

// current reports whether no newer retrieval has started for this ticket's key
func (r *retrievalTicket) current() bool {
	if r.tracker == nil {
		return true
	}

	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	cur := r.tracker.inflight[r.key]

	return cur != nil && cur.generation == r.generation
}

func (r *retrievalTicket) done() {
	r.cancel()

	if r.tracker == nil {
		return
	}

	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()

	if cur := r.tracker.inflight[r.key]; cur != nil && cur.generation == r.generation {
		delete(r.tracker.inflight, r.key)
	}
}
