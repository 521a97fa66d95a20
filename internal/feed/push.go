package feed

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/polymarket-arb/internal/eventbus"
	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"go.uber.org/zap"
)

// pushTransport is the subset of websocket.Manager and websocket.Pool that
// PushSource needs. A single market only needs one connection, but tracking
// hundreds of binary markets means thousands of token subscriptions, which a
// sharded websocket.Pool spreads across several connections; PushSource
// doesn't care which one it's driving.
type pushTransport interface {
	Start() error
	Subscribe(ctx context.Context, tokenIDs []string) error
	MessageChan() <-chan *types.OrderbookMessage
	IsConnected() bool
	Close() error
}

// PushSource is the WebSocket-backed Source: the venue pushes frames, this
// type normalizes them and writes them through the store.
type PushSource struct {
	mgr      pushTransport
	store    *orderbook.Store
	notifier *Notifier
	bus      *eventbus.Bus
	logger   *zap.Logger

	mu     sync.RWMutex
	tokens map[string]TokenRef

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPushSource builds a PushSource over an already-configured websocket
// transport, either a single *websocket.Manager or a sharded *websocket.Pool.
func NewPushSource(mgr pushTransport, store *orderbook.Store, notifier *Notifier, bus *eventbus.Bus, logger *zap.Logger) *PushSource {
	return &PushSource{
		mgr:      mgr,
		store:    store,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		tokens:   make(map[string]TokenRef),
	}
}

// SetTokens replaces the watched token set and subscribes any tokens not
// already subscribed on the live connection.
func (p *PushSource) SetTokens(tokens []TokenRef) {
	p.mu.Lock()
	m := make(map[string]TokenRef, len(tokens))
	ids := make([]string, 0, len(tokens))
	for _, t := range tokens {
		m[t.TokenID] = t
		ids = append(ids, t.TokenID)
	}
	p.tokens = m
	p.mu.Unlock()

	if len(ids) > 0 {
		if err := p.mgr.Subscribe(context.Background(), ids); err != nil {
			p.logger.Warn("feed-push-subscribe-failed", zap.Error(err))
		}
	}
}

// Start launches the underlying connection and the consume/watch loops.
func (p *PushSource) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.mgr.Start(); err != nil {
		return err
	}

	p.mu.RLock()
	ids := make([]string, 0, len(p.tokens))
	for id := range p.tokens {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	if len(ids) > 0 {
		if err := p.mgr.Subscribe(ctx, ids); err != nil {
			p.logger.Warn("feed-push-initial-subscribe-failed", zap.Error(err))
		}
	}

	p.wg.Add(2)
	go p.consumeLoop(ctx)
	go p.watchConnection(ctx)
	return nil
}

func (p *PushSource) consumeLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.mgr.MessageChan():
			if !ok {
				return
			}
			p.apply(msg)
		}
	}
}

func (p *PushSource) apply(msg *types.OrderbookMessage) {
	p.mu.RLock()
	ref, known := p.tokens[msg.AssetID]
	p.mu.RUnlock()
	if !known {
		return
	}

	u := orderbook.Update{
		TokenID:  ref.TokenID,
		MarketID: ref.MarketID,
		Outcome:  ref.Outcome,
		Seq:      msg.Seq,
	}
	if bp, bs, ok := bestBid(msg.Bids); ok {
		u.HasBid, u.BidPrice, u.BidSize = true, bp, bs
	}
	if ap, as, ok := bestAsk(msg.Asks); ok {
		u.HasAsk, u.AskPrice, u.AskSize = true, ap, as
	}
	if !u.HasBid && !u.HasAsk {
		return
	}

	if p.store.Apply(u) {
		p.notifier.Notify(ref.MarketID)
	}
}

// watchConnection polls the manager's connection state and marks every
// watched book stale the moment the connection drops, rather than
// waiting for a fresh snapshot to arrive and discovering staleness late.
func (p *PushSource) watchConnection(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	wasConnected := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := p.mgr.IsConnected()
			if wasConnected && !connected {
				ReconnectsTotal.Inc()
				p.markAllStale()
				if p.bus != nil {
					p.bus.Publish(eventbus.FeedDisconnected, eventbus.FeedStatusPayload{Mode: "push"})
				}
			} else if !wasConnected && connected {
				if p.bus != nil {
					p.bus.Publish(eventbus.FeedReconnected, eventbus.FeedStatusPayload{Mode: "push"})
				}
			}
			wasConnected = connected
		}
	}
}

func (p *PushSource) markAllStale() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id := range p.tokens {
		p.store.MarkStale(id)
	}
}

// MarkStale marks a single token's book stale.
func (p *PushSource) MarkStale(tokenID string) {
	p.store.MarkStale(tokenID)
}

// Stop tears down the connection and waits for the loops to exit.
func (p *PushSource) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return p.mgr.Close()
}
