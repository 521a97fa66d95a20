package arbitrage

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/polymarket-arb/internal/eventbus"
	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/internal/registry"
	"github.com/mselser95/polymarket-arb/internal/risk"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRegistry struct {
	markets map[string]registry.Market
}

func (f *fakeRegistry) Get(marketID string) (registry.Market, bool) {
	m, ok := f.markets[marketID]
	return m, ok
}

type fakeNotifier struct {
	ids chan string
}

func newFakeNotifier(ids ...string) *fakeNotifier {
	ch := make(chan string, len(ids))
	for _, id := range ids {
		ch <- id
	}
	return &fakeNotifier{ids: ch}
}

func (f *fakeNotifier) Next(ctx context.Context) (string, bool) {
	select {
	case id := <-f.ids:
		return id, true
	case <-ctx.Done():
		return "", false
	}
}

func setupDetector(t *testing.T, market registry.Market, marketID string) (*Detector, *orderbook.Store, *risk.Gate, *fakeNotifier, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := orderbook.New(fc, zap.NewNop())
	reg := &fakeRegistry{markets: map[string]registry.Market{marketID: market}}
	notifier := newFakeNotifier(marketID)
	gate := risk.New(risk.Config{
		MaxBetSize:          1000,
		MaxBankrollFraction: 1.0,
		MinNotional:         1,
		MinSize:             1,
		ReservationTTL:      time.Minute,
		Clock:               fc,
		Logger:              zap.NewNop(),
	})
	gate.SetBankrollTotal(10000)

	d := New(Config{
		MinProfitMargin: 0.0,
		MinSize:         1,
		MaxSize:         1000,
		FeeReserveBPS:   0,
		FreshnessTTL:    time.Second,
		Workers:         1,
		Clock:           fc,
		Logger:          zap.NewNop(),
	}, reg, store, notifier, gate, eventbus.New(zap.NewNop()), nil)

	return d, store, gate, notifier, fc
}

func TestDetector_AcceptsCleanOpportunity(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	d, store, _, _, fc := setupDetector(t, market, "m1")

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.40, AskSize: 50})
	store.Apply(orderbook.Update{TokenID: "down1", MarketID: "m1", Outcome: "DOWN", Seq: 1, HasAsk: true, AskPrice: 0.50, AskSize: 50})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Start(ctx)

	select {
	case got := <-d.Opportunities():
		assert.Equal(t, "m1", got.Opportunity.MarketID)
		assert.InDelta(t, 45.0, got.Reservation.Notional, 1e-6) // size(50) * priceSum(0.9)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected an opportunity")
	}
	_ = fc
	cancel()
	d.Close()
}

func TestDetector_RejectsStaleBook(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	d, store, _, _, fc := setupDetector(t, market, "m1")

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.40, AskSize: 50})
	store.Apply(orderbook.Update{TokenID: "down1", MarketID: "m1", Outcome: "DOWN", Seq: 1, HasAsk: true, AskPrice: 0.50, AskSize: 50})
	fc.Advance(10 * time.Second) // older than FreshnessTTL

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Opportunities():
		t.Fatal("stale book must not produce an opportunity")
	case <-time.After(100 * time.Millisecond):
	}
	d.Close()
}

func TestDetector_RejectsThinMargin(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	fc := clock.NewFake(time.Now())
	store := orderbook.New(fc, zap.NewNop())
	reg := &fakeRegistry{markets: map[string]registry.Market{"m1": market}}
	notifier := newFakeNotifier("m1")
	gate := risk.New(risk.Config{MaxBetSize: 1000, MaxBankrollFraction: 1, MinNotional: 1, MinSize: 1, ReservationTTL: time.Minute, Clock: fc, Logger: zap.NewNop()})
	gate.SetBankrollTotal(10000)

	d := New(Config{
		MinProfitMargin: 0.05, // require 5% margin
		MinSize:         1,
		MaxSize:         1000,
		FreshnessTTL:    time.Second,
		Workers:         1,
		Clock:           fc,
		Logger:          zap.NewNop(),
	}, reg, store, notifier, gate, eventbus.New(zap.NewNop()), nil)

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.49, AskSize: 50})
	store.Apply(orderbook.Update{TokenID: "down1", MarketID: "m1", Outcome: "DOWN", Seq: 1, HasAsk: true, AskPrice: 0.50, AskSize: 50}) // sum .99, 1% margin only

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Opportunities():
		t.Fatal("margin below MinProfitMargin must be rejected")
	case <-time.After(100 * time.Millisecond):
	}
	d.Close()
}

func TestDetector_MissingOrderbookSkipped(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	d, store, _, _, _ := setupDetector(t, market, "m1")

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.40, AskSize: 50})
	// down1 never populated

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Opportunities():
		t.Fatal("missing sibling book must not produce an opportunity")
	case <-time.After(100 * time.Millisecond):
	}
	d.Close()
}

func TestDetector_ChannelFullReleasesReservation(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	d, store, gate, _, _ := setupDetector(t, market, "m1")

	// fill the output channel so the send falls to the default branch
	for i := 0; i < cap(d.outCh); i++ {
		d.outCh <- Detected{}
	}

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.40, AskSize: 50})
	store.Apply(orderbook.Update{TokenID: "down1", MarketID: "m1", Outcome: "DOWN", Seq: 1, HasAsk: true, AskPrice: 0.50, AskSize: 50})

	statusBefore := gate.Status()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.evaluate(ctx, "m1")

	statusAfter := gate.Status()
	require.Equal(t, statusBefore.Available, statusAfter.Available, "reservation must be released back when execution can't keep up")
}

func TestDetector_StoresAcceptedOpportunity(t *testing.T) {
	market := registry.Market{MarketID: "m1", UpToken: "up1", DownToken: "down1", TickSize: 0.01, FeeBpsTaker: 0}
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := orderbook.New(fc, zap.NewNop())
	reg := &fakeRegistry{markets: map[string]registry.Market{"m1": market}}
	notifier := newFakeNotifier("m1")
	gate := risk.New(risk.Config{
		MaxBetSize: 1000, MaxBankrollFraction: 1.0, MinNotional: 1, MinSize: 1,
		ReservationTTL: time.Minute, Clock: fc, Logger: zap.NewNop(),
	})
	gate.SetBankrollTotal(10000)

	storage := NewMockStorage()
	d := New(Config{
		MinProfitMargin: 0.0, MinSize: 1, MaxSize: 1000, FreshnessTTL: time.Second,
		Workers: 1, Clock: fc, Logger: zap.NewNop(),
	}, reg, store, notifier, gate, eventbus.New(zap.NewNop()), storage)

	store.Apply(orderbook.Update{TokenID: "up1", MarketID: "m1", Outcome: "UP", Seq: 1, HasAsk: true, AskPrice: 0.40, AskSize: 50})
	store.Apply(orderbook.Update{TokenID: "down1", MarketID: "m1", Outcome: "DOWN", Seq: 1, HasAsk: true, AskPrice: 0.50, AskSize: 50})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Opportunities():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected an opportunity")
	}
	d.Close()

	stored := storage.GetOpportunities()
	require.Len(t, stored, 1)
	require.Equal(t, "m1", stored[0].MarketID)
}
