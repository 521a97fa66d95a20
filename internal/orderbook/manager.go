// Package orderbook implements the Orderbook Store (C3): a concurrent,
// per-token best-bid/ask map with strictly monotonic sequence numbers and
// freshness timestamps set from the engine's own clock.
package orderbook

import (
	"time"

	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"go.uber.org/zap"
	"sync"
)

// Store is the C3 Orderbook Store. Writes are serialized by a single RWMutex
// guarding the map; each token's book is only ever mutated while holding that
// lock, which is the same "one writer" guarantee a per-token lock would give
// at this scale, and readers snapshot by copy rather than sharing pointers.
type Store struct {
	mu     sync.RWMutex
	books  map[string]*types.OrderbookSnapshot
	clk    clock.Clock
	logger *zap.Logger
}

// New creates an empty Orderbook Store.
func New(clk clock.Clock, logger *zap.Logger) *Store {
	return &Store{
		books:  make(map[string]*types.OrderbookSnapshot),
		clk:    clk,
		logger: logger,
	}
}

// Update is a normalized best-of-book write, already parsed by the feed
// ingestor. HasBid/HasAsk let price_change frames update one side only.
type Update struct {
	TokenID  string
	MarketID string
	Outcome  string
	Seq      int64
	HasBid   bool
	BidPrice float64
	BidSize  float64
	HasAsk   bool
	AskPrice float64
	AskSize  float64
}

// Apply writes an update to the store iff its sequence number is strictly
// greater than the one currently stored for that token. A
// non-increasing seq is dropped silently and counted, never erroring.
func (s *Store) Apply(u Update) (applied bool) {
	lockStart := time.Now()
	s.mu.Lock()
	LockContentionDuration.Observe(time.Since(lockStart).Seconds())
	defer s.mu.Unlock()

	existing, ok := s.books[u.TokenID]
	if ok && u.Seq <= existing.Seq {
		UpdatesOutOfOrderTotal.Inc()
		s.logger.Debug("orderbook-update-out-of-order",
			zap.String("token-id", u.TokenID),
			zap.Int64("incoming-seq", u.Seq),
			zap.Int64("stored-seq", existing.Seq))
		return false
	}

	now := s.clk.Now()
	var book *types.OrderbookSnapshot
	if ok {
		book = existing
	} else {
		book = &types.OrderbookSnapshot{
			MarketID: u.MarketID,
			TokenID:  u.TokenID,
			Outcome:  u.Outcome,
		}
		s.books[u.TokenID] = book
	}

	if u.HasBid {
		book.BestBidPrice = u.BidPrice
		if u.BidSize > 0 {
			book.BestBidSize = u.BidSize
		}
	}
	if u.HasAsk {
		book.BestAskPrice = u.AskPrice
		if u.AskSize > 0 {
			book.BestAskSize = u.AskSize
		}
	}
	book.Seq = u.Seq
	book.LastUpdated = now // monotonic clock, never the wire timestamp
	book.Stale = false

	SnapshotsTracked.Set(float64(len(s.books)))
	UpdatesAppliedTotal.Inc()

	return true
}

// MarkStale flags a token's book as stale, e.g. after a feed reconnect, until
// a fresh snapshot frame arrives.
func (s *Store) MarkStale(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if book, ok := s.books[tokenID]; ok {
		book.Stale = true
		BooksMarkedStaleTotal.Inc()
	}
}

// Snapshot returns a copy of a single token's book. Callers MUST NOT assume
// cross-token consistency between two Snapshot calls.
func (s *Store) Snapshot(tokenID string) (*types.OrderbookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[tokenID]
	if !ok {
		return nil, false
	}
	cp := *book
	return &cp, true
}

// AllSnapshots returns a defensive copy of every tracked book, keyed by token.
func (s *Store) AllSnapshots() map[string]*types.OrderbookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*types.OrderbookSnapshot, len(s.books))
	for tokenID, book := range s.books {
		cp := *book
		out[tokenID] = &cp
	}
	return out
}
