// Package risk implements the Risk Gate (C6): bankroll accounting, per-market
// in-flight limiting, and opportunity sizing. All bankroll arithmetic is
// serialized behind a single lock, kept deliberately separate from the
// Execution Engine's own state, per the design note on breaking the
// execution<->risk cycle with message-passing: the gate never holds a
// back-pointer to an execution, it only hands out Reservation values and
// accepts Release calls.
package risk

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"go.uber.org/zap"
)

// ReservationState is the lifecycle state of a Reservation.
type ReservationState int

const (
	StatePending ReservationState = iota
	StatePartial
	StateClosed
)

// Reservation is the bankroll lock held from opportunity acceptance until
// execution terminates.
type Reservation struct {
	ID        string
	MarketID  string
	Notional  float64
	CreatedAt time.Time
	State     ReservationState
}

// RejectReason enumerates the accept-logic outcomes, step-ordered.
type RejectReason string

const (
	RejectNone               RejectReason = ""
	RejectInFlight           RejectReason = "InFlight"
	RejectBankrollExhausted  RejectReason = "BankrollExhausted"
	RejectBelowMinimum       RejectReason = "BelowMinimum"
)

// Config configures a Gate.
type Config struct {
	MaxBetSize          float64
	MaxBankrollFraction float64
	MinNotional         float64
	MinSize             float64 // config min trade size, used in the bankroll-exhausted check
	ReservationTTL      time.Duration
	Clock               clock.Clock
	Logger              *zap.Logger
}

// Gate is the C6 Risk Gate: a single-threaded reservation coordinator.
type Gate struct {
	mu sync.Mutex

	total     float64
	available float64
	reserved  float64

	maxBetSize          float64
	maxBankrollFraction float64
	minNotional         float64
	minSize             float64
	reservationTTL      time.Duration

	byMarket map[string]*Reservation // at most one reservation per market
	byID     map[string]*Reservation

	clk    clock.Clock
	logger *zap.Logger
}

// New constructs a Gate. The bankroll total starts at zero; callers feed it
// via SetBankrollTotal from the balance-reading collaborator (S1).
func New(cfg Config) *Gate {
	return &Gate{
		maxBetSize:          cfg.MaxBetSize,
		maxBankrollFraction: cfg.MaxBankrollFraction,
		minNotional:         cfg.MinNotional,
		minSize:             cfg.MinSize,
		reservationTTL:      cfg.ReservationTTL,
		byMarket:            make(map[string]*Reservation),
		byID:                make(map[string]*Reservation),
		clk:                 cfg.Clock,
		logger:              cfg.Logger,
	}
}

// SetBankrollTotal updates the process-wide bankroll total, preserving the
// invariant available + reserved = total. Called when the balance
// collaborator observes a new on-chain balance.
func (g *Gate) SetBankrollTotal(total float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delta := total - g.total
	g.total = total
	g.available += delta
	if g.available < 0 {
		g.available = 0
	}
	BankrollAvailable.Set(g.available)
	BankrollReserved.Set(g.reserved)
}

// Evaluate runs the accept logic in order and, on accept, reserves
// bankroll and returns the Reservation.
func (g *Gate) Evaluate(marketID string, askUp, askDown, size float64) (*Reservation, RejectReason) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// 1. In-flight check.
	if _, exists := g.byMarket[marketID]; exists {
		OpportunitiesRejectedTotal.WithLabelValues(string(RejectInFlight)).Inc()
		return nil, RejectInFlight
	}

	avgPrice := (askUp + askDown) / 2
	// 2. Bankroll-exhausted check: available capacity must cover
	// at least a minimum-sized clip at the current average price.
	if g.available*g.maxBankrollFraction < g.minSize*avgPrice {
		OpportunitiesRejectedTotal.WithLabelValues(string(RejectBankrollExhausted)).Inc()
		return nil, RejectBankrollExhausted
	}

	// 3. Desired notional.
	desired := min3(g.maxBetSize, size*(askUp+askDown), g.available*g.maxBankrollFraction)

	// 4. Minimum notional check.
	if desired < g.minNotional {
		OpportunitiesRejectedTotal.WithLabelValues(string(RejectBelowMinimum)).Inc()
		return nil, RejectBelowMinimum
	}

	// 5. Reserve.
	g.available -= desired
	g.reserved += desired
	BankrollAvailable.Set(g.available)
	BankrollReserved.Set(g.reserved)

	res := &Reservation{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		Notional:  desired,
		CreatedAt: g.clk.Now(),
		State:     StatePending,
	}
	g.byMarket[marketID] = res
	g.byID[res.ID] = res
	ReservationsOpen.Set(float64(len(g.byID)))
	OpportunitiesAcceptedTotal.Inc()

	g.logger.Info("reservation-opened",
		zap.String("reservation-id", res.ID),
		zap.String("market-id", marketID),
		zap.Float64("notional", desired))

	return res, RejectNone
}

// MarkPartial records that one leg of an execution has filled while the
// other is still working, without releasing the reservation.
func (g *Gate) MarkPartial(reservationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.byID[reservationID]; ok {
		res.State = StatePartial
	}
}

// Release closes a reservation on terminal execution result, returning
// bankroll minus realizedCost to available (the both-filled case).
// realizedCost is what the execution spent; it is also subtracted from total,
// so a negative realizedCost adds to both available and total.
func (g *Gate) Release(reservationID string, realizedCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.byID[reservationID]
	if !ok {
		return
	}
	res.State = StateClosed

	g.reserved -= res.Notional
	if g.reserved < 0 {
		g.reserved = 0
	}
	g.available += res.Notional - realizedCost
	g.total -= realizedCost

	delete(g.byID, reservationID)
	delete(g.byMarket, res.MarketID)
	BankrollAvailable.Set(g.available)
	BankrollReserved.Set(g.reserved)
	ReservationsOpen.Set(float64(len(g.byID)))

	g.logger.Info("reservation-closed",
		zap.String("reservation-id", reservationID),
		zap.Float64("realized-cost", realizedCost))
}

// SweepExpired returns every reservation past its TTL so the caller (C7)
// can cancel working orders. Release of the
// bankroll is the caller's responsibility via Release once cancellation
// settles; SweepExpired only identifies candidates, it is read-only.
func (g *Gate) SweepExpired() []*Reservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	var expired []*Reservation
	for _, res := range g.byID {
		if now.Sub(res.CreatedAt) >= g.reservationTTL {
			expired = append(expired, res)
			ReservationsExpiredTotal.Inc()
		}
	}
	return expired
}

// Status is a read-only snapshot for debugging/HTTP endpoints.
type Status struct {
	Total           float64
	Available       float64
	Reserved        float64
	OpenReservations int
}

func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Total:            g.total,
		Available:        g.available,
		Reserved:         g.reserved,
		OpenReservations: len(g.byID),
	}
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
