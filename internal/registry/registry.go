// Package registry implements the Market Registry (C2): the active
// (market_id, up_token, down_token, expiry) set, fed by a market-discovery
// collaborator external to this package, and consumed by the Feed Ingestor
// and the rest of the core as the canonical set of tradeable markets.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"go.uber.org/zap"
)

// Market is the registry's record for one binary market.
type Market struct {
	MarketID    string
	UpToken     string
	DownToken   string
	ExpiryTS    time.Time
	TickSize    float64
	FeeBpsTaker int
	FeeBpsMaker int
}

// EventType distinguishes registry add/remove events.
type EventType int

const (
	EventAdded EventType = iota
	EventRemoved
)

// Event is emitted on the registry's canonical stream on every add/remove.
type Event struct {
	Type   EventType
	Market Market
}

// Registry owns market_id -> Market and enforces token uniqueness across the
// live set.
type Registry struct {
	mu        sync.RWMutex
	byMarket  map[string]Market
	tokenOwner map[string]string // token -> market_id

	clk    clock.Clock
	logger *zap.Logger

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int

	wg sync.WaitGroup
}

// New creates an empty Market Registry.
func New(clk clock.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		byMarket:    make(map[string]Market),
		tokenOwner:  make(map[string]string),
		clk:         clk,
		logger:      logger,
		subscribers: make(map[int]chan Event),
	}
}

// Add validates and inserts a market, emitting EventAdded to subscribers.
// Fails with ErrDuplicateToken if either token already belongs to a
// different live market.
func (r *Registry) Add(m Market) error {
	if m.UpToken == "" || m.DownToken == "" {
		MarketsRejectedTotal.WithLabelValues("empty_token").Inc()
		return types.NewKindError(types.ErrConfigInvalid, errors.New("up_token and down_token must be non-empty"))
	}
	if m.UpToken == m.DownToken {
		MarketsRejectedTotal.WithLabelValues("same_token").Inc()
		return types.NewKindError(types.ErrConfigInvalid, errors.New("up_token and down_token must differ"))
	}
	if !m.ExpiryTS.After(r.clk.Now()) {
		MarketsRejectedTotal.WithLabelValues("already_expired").Inc()
		return types.NewKindError(types.ErrConfigInvalid, errors.New("expiry must be in the future"))
	}

	r.mu.Lock()
	if owner, ok := r.tokenOwner[m.UpToken]; ok && owner != m.MarketID {
		r.mu.Unlock()
		MarketsRejectedTotal.WithLabelValues("duplicate_token").Inc()
		return types.ErrDuplicateToken
	}
	if owner, ok := r.tokenOwner[m.DownToken]; ok && owner != m.MarketID {
		r.mu.Unlock()
		MarketsRejectedTotal.WithLabelValues("duplicate_token").Inc()
		return types.ErrDuplicateToken
	}

	r.byMarket[m.MarketID] = m
	r.tokenOwner[m.UpToken] = m.MarketID
	r.tokenOwner[m.DownToken] = m.MarketID
	MarketsActive.Set(float64(len(r.byMarket)))
	r.mu.Unlock()

	MarketsAddedTotal.Inc()
	r.logger.Info("market-registered",
		zap.String("market-id", m.MarketID),
		zap.String("up-token", m.UpToken),
		zap.String("down-token", m.DownToken),
		zap.Time("expiry", m.ExpiryTS))

	r.publish(Event{Type: EventAdded, Market: m})
	return nil
}

// Remove evicts a market. Idempotent: removing an absent market is a no-op.
func (r *Registry) Remove(marketID string) {
	r.mu.Lock()
	m, ok := r.byMarket[marketID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byMarket, marketID)
	delete(r.tokenOwner, m.UpToken)
	delete(r.tokenOwner, m.DownToken)
	MarketsActive.Set(float64(len(r.byMarket)))
	r.mu.Unlock()

	r.logger.Info("market-removed", zap.String("market-id", marketID))
	r.publish(Event{Type: EventRemoved, Market: m})
}

// Snapshot atomically enumerates the current market set.
func (r *Registry) Snapshot() []Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Market, 0, len(r.byMarket))
	for _, m := range r.byMarket {
		out = append(out, m)
	}
	return out
}

// Get looks up a single market by id.
func (r *Registry) Get(marketID string) (Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byMarket[marketID]
	return m, ok
}

// MarketForToken resolves the market owning a given token, used by the
// detector to find a token's sibling leg.
func (r *Registry) MarketForToken(tokenID string) (Market, bool) {
	r.mu.RLock()
	marketID, ok := r.tokenOwner[tokenID]
	if !ok {
		r.mu.RUnlock()
		return Market{}, false
	}
	m := r.byMarket[marketID]
	r.mu.RUnlock()
	return m, true
}

// Subscribe returns a channel of registry events. The channel is buffered;
// callers that fall behind only miss events going forward, they never block
// Add/Remove.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.subMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	ch := make(chan Event, 256)
	r.subscribers[id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if c, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(c)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) publish(evt Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for id, ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
			r.logger.Warn("registry-subscriber-slow-dropping-event", zap.Int("subscriber", id))
		}
	}
}

// Start runs the periodic expiry sweep until ctx is cancelled, periodically
// sweeping expired markets and emitting removals.
func (r *Registry) Start(ctx context.Context, sweepInterval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := r.clk.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				r.sweep()
			}
		}
	}()
}

// sweep removes every market whose expiry has passed.
func (r *Registry) sweep() {
	now := r.clk.Now()

	r.mu.RLock()
	var expired []string
	for id, m := range r.byMarket {
		if !m.ExpiryTS.After(now) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		MarketsExpiredSweptTotal.Inc()
		r.Remove(id)
	}
}

// Close waits for the sweep goroutine to exit.
func (r *Registry) Close() {
	r.wg.Wait()
}
