package feed

import (
	"context"
	"sync"
)

// Notifier is the coalescing hand-off between the ingestor and the
// Opportunity Detector: for every accepted update the ingestor marks
// that update's market_id pending and signals once. A market already pending
// when a second update lands is not signaled twice — the detector will see
// the latest book either way once it drains the pending set, which is the
// "latest wins" coalescing the detector's contract asks for.
type Notifier struct {
	mu      sync.Mutex
	pending map[string]struct{}
	signal  chan struct{}
}

// NewNotifier constructs an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Notify marks marketID pending and wakes a waiting consumer.
func (n *Notifier) Notify(marketID string) {
	n.mu.Lock()
	_, already := n.pending[marketID]
	n.pending[marketID] = struct{}{}
	n.mu.Unlock()

	if already {
		NotifyCoalescedTotal.Inc()
	}

	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Next blocks until at least one market is pending, then pops and returns
// one. Callers loop on Next to drain the full pending set.
func (n *Notifier) Next(ctx context.Context) (marketID string, ok bool) {
	for {
		n.mu.Lock()
		for m := range n.pending {
			delete(n.pending, m)
			n.mu.Unlock()
			return m, true
		}
		n.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-n.signal:
		}
	}
}
