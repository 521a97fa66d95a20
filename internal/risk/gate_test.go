package risk

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGate() (*Gate, *clock.Fake) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := New(Config{
		MaxBetSize:          100,
		MaxBankrollFraction: 0.05,
		MinNotional:         5,
		MinSize:             5,
		ReservationTTL:      10 * time.Second,
		Clock:               fc,
		Logger:              zap.NewNop(),
	})
	return g, fc
}

func TestGate_BankrollCapScenario(t *testing.T) {
	// total=1000, max_bankroll_fraction=0.05, max_bet_size=100;
	// opportunity notional would be 200; accepted amount = 50.
	g, _ := newTestGate()
	g.SetBankrollTotal(1000)

	res, reason := g.Evaluate("m1", 0.40, 0.60, 200) // size*(askUp+askDown) = 200
	require.Equal(t, RejectNone, reason)
	require.NotNil(t, res)
	assert.Equal(t, 50.0, res.Notional)
}

func TestGate_InFlightRejectsSecondOpportunitySameMarket(t *testing.T) {
	g, _ := newTestGate()
	g.SetBankrollTotal(1000)

	_, reason := g.Evaluate("m1", 0.4, 0.5, 50)
	require.Equal(t, RejectNone, reason)

	_, reason = g.Evaluate("m1", 0.4, 0.5, 50)
	assert.Equal(t, RejectInFlight, reason)
}

func TestGate_BelowMinimumRejected(t *testing.T) {
	g, _ := newTestGate()
	g.SetBankrollTotal(1000)

	// size*(askUp+askDown) tiny, and max_bankroll_fraction*available also tiny relative to min_notional
	g2 := New(Config{MaxBetSize: 100, MaxBankrollFraction: 0.05, MinNotional: 5, MinSize: 0.01, ReservationTTL: time.Second, Clock: clock.NewFake(time.Now()), Logger: zap.NewNop()})
	g2.SetBankrollTotal(1000)
	_, reason := g2.Evaluate("m1", 0.01, 0.01, 1) // desired = min(100, 1*0.02, 50) = 0.02 < 5
	assert.Equal(t, RejectBelowMinimum, reason)
	_ = g
}

func TestGate_BankrollExhaustedRejected(t *testing.T) {
	g, _ := newTestGate()
	g.SetBankrollTotal(10) // available*0.05 = 0.5 < min_size(5)*avgPrice(0.45)=2.25

	_, reason := g.Evaluate("m1", 0.4, 0.5, 50)
	assert.Equal(t, RejectBankrollExhausted, reason)
}

func TestGate_ReleasePreservesInvariant(t *testing.T) {
	g, _ := newTestGate()
	g.SetBankrollTotal(1000)

	res, reason := g.Evaluate("m1", 0.4, 0.5, 50)
	require.Equal(t, RejectNone, reason)

	statusBefore := g.Status()
	assert.InDelta(t, statusBefore.Total, statusBefore.Available+statusBefore.Reserved, 1e-9)

	g.Release(res.ID, 5) // realized cost of 5 comes off total and available

	statusAfter := g.Status()
	assert.InDelta(t, statusAfter.Total, statusAfter.Available+statusAfter.Reserved, 1e-9)

	// market no longer in-flight
	_, reason = g.Evaluate("m1", 0.4, 0.5, 50)
	assert.Equal(t, RejectNone, reason)
}

func TestGate_SweepExpiredReservations(t *testing.T) {
	g, fc := newTestGate()
	g.SetBankrollTotal(1000)

	res, reason := g.Evaluate("m1", 0.4, 0.5, 50)
	require.Equal(t, RejectNone, reason)

	assert.Empty(t, g.SweepExpired())

	fc.Advance(11 * time.Second)
	expired := g.SweepExpired()
	require.Len(t, expired, 1)
	assert.Equal(t, res.ID, expired[0].ID)
}

func TestGate_AtMostOneReservationPerMarketInvariant(t *testing.T) {
	g, _ := newTestGate()
	g.SetBankrollTotal(10000)

	_, reason := g.Evaluate("m1", 0.4, 0.5, 10)
	require.Equal(t, RejectNone, reason)

	count := 0
	for i := 0; i < 5; i++ {
		if _, r := g.Evaluate("m1", 0.4, 0.5, 10); r == RejectNone {
			count++
		}
	}
	assert.Equal(t, 0, count, "at most one reservation per market at any time")
}
