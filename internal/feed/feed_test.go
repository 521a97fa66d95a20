package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifier_CoalescesRepeatedSignalsForSameMarket(t *testing.T) {
	n := NewNotifier()
	n.Notify("m1")
	n.Notify("m1")
	n.Notify("m1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m, ok := n.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "m1", m)

	// nothing else pending
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, ok = n.Next(ctx2)
	assert.False(t, ok)
}

func TestNotifier_NextBlocksUntilNotified(t *testing.T) {
	n := NewNotifier()
	done := make(chan string, 1)
	go func() {
		m, _ := n.Next(context.Background())
		done <- m
	}()

	time.Sleep(10 * time.Millisecond)
	n.Notify("m2")

	select {
	case m := <-done:
		assert.Equal(t, "m2", m)
	case <-time.After(time.Second):
		t.Fatal("Next never returned")
	}
}

func TestBestBidAsk(t *testing.T) {
	bids := []types.PriceLevel{{Price: "0.40", Size: "100"}, {Price: "0.42", Size: "50"}}
	asks := []types.PriceLevel{{Price: "0.60", Size: "80"}, {Price: "0.58", Size: "20"}}

	bp, bs, ok := bestBid(bids)
	require.True(t, ok)
	assert.Equal(t, 0.42, bp)
	assert.Equal(t, 50.0, bs)

	ap, as, ok := bestAsk(asks)
	require.True(t, ok)
	assert.Equal(t, 0.58, ap)
	assert.Equal(t, 20.0, as)
}

func TestPollSource_FetchAppliesBestOfBookAndNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"bids": []types.PriceLevel{{Price: "0.40", Size: "10"}},
			"asks": []types.PriceLevel{{Price: "0.60", Size: "10"}},
		})
	}))
	defer srv.Close()

	store := orderbook.New(clock.NewReal(), zap.NewNop())
	notifier := NewNotifier()
	fc := clock.NewFake(time.Now())

	src := NewPollSource(PollConfig{
		BaseURL:      srv.URL,
		Store:        store,
		Notifier:     notifier,
		Clock:        fc,
		Logger:       zap.NewNop(),
		ScanInterval: time.Hour,
		Concurrency:  2,
	})
	src.SetTokens([]TokenRef{{TokenID: "tok-up", MarketID: "m1", Outcome: "UP"}})

	src.scanOnce(context.Background())

	snap, ok := store.Snapshot("tok-up")
	require.True(t, ok)
	assert.Equal(t, 0.40, snap.BestBidPrice)
	assert.Equal(t, 0.60, snap.BestAskPrice)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, ok := notifier.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "m1", m)
}

func TestPollSource_FailedFetchMarksStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := orderbook.New(clock.NewReal(), zap.NewNop())
	store.Apply(orderbook.Update{TokenID: "tok-up", MarketID: "m1", Outcome: "UP", Seq: 1, HasBid: true, BidPrice: 0.4, BidSize: 10})

	src := NewPollSource(PollConfig{
		BaseURL:      srv.URL,
		Store:        store,
		Notifier:     NewNotifier(),
		Clock:        clock.NewFake(time.Now()),
		Logger:       zap.NewNop(),
		ScanInterval: time.Hour,
	})
	src.SetTokens([]TokenRef{{TokenID: "tok-up", MarketID: "m1", Outcome: "UP"}})

	src.scanOnce(context.Background())

	snap, ok := store.Snapshot("tok-up")
	require.True(t, ok)
	assert.True(t, snap.Stale)
}
