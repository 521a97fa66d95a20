package registry

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() (*Registry, *clock.Fake) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(fc, zap.NewNop()), fc
}

func testMarket(id string, fc *clock.Fake, ttl time.Duration) Market {
	return Market{
		MarketID: id, UpToken: id + "-up", DownToken: id + "-down",
		ExpiryTS: fc.Now().Add(ttl), TickSize: 0.01, FeeBpsTaker: 100,
	}
}

func TestRegistry_AddAndSnapshot(t *testing.T) {
	r, fc := newTestRegistry()
	require.NoError(t, r.Add(testMarket("m1", fc, time.Hour)))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "m1", snap[0].MarketID)
}

func TestRegistry_DuplicateTokenRejected(t *testing.T) {
	r, fc := newTestRegistry()
	require.NoError(t, r.Add(testMarket("m1", fc, time.Hour)))

	m2 := testMarket("m2", fc, time.Hour)
	m2.UpToken = "m1-up" // collides with m1's up token
	err := r.Add(m2)
	assert.ErrorIs(t, err, types.ErrDuplicateToken)
}

func TestRegistry_RejectsExpiredOrDegenerateMarket(t *testing.T) {
	r, fc := newTestRegistry()

	err := r.Add(testMarket("expired", fc, -time.Second))
	assert.Error(t, err)

	degenerate := testMarket("m3", fc, time.Hour)
	degenerate.DownToken = degenerate.UpToken
	err = r.Add(degenerate)
	assert.Error(t, err)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r, fc := newTestRegistry()
	require.NoError(t, r.Add(testMarket("m1", fc, time.Hour)))

	r.Remove("m1")
	r.Remove("m1") // must not panic or error
	assert.Empty(t, r.Snapshot())

	_, ok := r.MarketForToken("m1-up")
	assert.False(t, ok, "removing a market frees its tokens")
}

func TestRegistry_MarketForToken(t *testing.T) {
	r, fc := newTestRegistry()
	require.NoError(t, r.Add(testMarket("m1", fc, time.Hour)))

	m, ok := r.MarketForToken("m1-down")
	require.True(t, ok)
	assert.Equal(t, "m1", m.MarketID)
}

func TestRegistry_PublishesAddAndRemoveEvents(t *testing.T) {
	r, fc := newTestRegistry()
	events, cancel := r.Subscribe()
	defer cancel()

	require.NoError(t, r.Add(testMarket("m1", fc, time.Hour)))
	evt := <-events
	assert.Equal(t, EventAdded, evt.Type)

	r.Remove("m1")
	evt = <-events
	assert.Equal(t, EventRemoved, evt.Type)
}

func TestRegistry_SweepEvictsExpiredMarkets(t *testing.T) {
	r, fc := newTestRegistry()
	require.NoError(t, r.Add(testMarket("short", fc, time.Second)))
	require.NoError(t, r.Add(testMarket("long", fc, time.Hour)))

	fc.Advance(2 * time.Second)
	r.sweep()

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "long", snap[0].MarketID)
}
