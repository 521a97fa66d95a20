// Package arbitrage implements the Opportunity Detector (C5): on every
// notified market it re-reads both legs' books, checks the margin with
// integer-tick arithmetic, and hands accepted opportunities to the risk
// gate and onward to execution.
package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/polymarket-arb/internal/eventbus"
	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/internal/registry"
	"github.com/mselser95/polymarket-arb/internal/risk"
	"github.com/mselser95/polymarket-arb/internal/ticks"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"go.uber.org/zap"
)

// Storage persists detected opportunities, independent of the execution
// path (S2's observability surface consumes it too).
type Storage interface {
	StoreOpportunity(ctx context.Context, opp *Opportunity) error
	Close() error
}

// MarketSource is the subset of the Market Registry the detector reads.
type MarketSource interface {
	Get(marketID string) (registry.Market, bool)
}

// Notifier is the subset of the Feed Ingestor the detector pulls from.
type Notifier interface {
	Next(ctx context.Context) (marketID string, ok bool)
}

// Config configures a Detector.
type Config struct {
	MinProfitMargin float64 // fraction of 1.0, e.g. 0.01
	MinSize         float64
	MaxSize         float64
	FeeReserveBPS   int
	FreshnessTTL    time.Duration
	Workers         int
	Clock           clock.Clock
	Logger          *zap.Logger
}

// Detected pairs an accepted Opportunity with the Reservation the risk gate
// opened for it, for the Execution Engine to consume.
type Detected struct {
	Opportunity *Opportunity
	Reservation *risk.Reservation
}

// Detector is the C5 Opportunity Detector.
type Detector struct {
	cfg      Config
	registry MarketSource
	store    *orderbook.Store
	notifier Notifier
	gate     *risk.Gate
	bus      *eventbus.Bus
	storage  Storage
	logger   *zap.Logger

	outCh chan Detected
	wg    sync.WaitGroup
}

// New constructs a Detector.
func New(cfg Config, reg MarketSource, store *orderbook.Store, notifier Notifier, gate *risk.Gate, bus *eventbus.Bus, storage Storage) *Detector {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Detector{
		cfg:      cfg,
		registry: reg,
		store:    store,
		notifier: notifier,
		gate:     gate,
		bus:      bus,
		storage:  storage,
		logger:   cfg.Logger,
		outCh:    make(chan Detected, 256),
	}
}

// Opportunities returns the channel of accepted opportunities ready for
// execution.
func (d *Detector) Opportunities() <-chan Detected {
	return d.outCh
}

// Start launches cfg.Workers evaluation goroutines, each pulling the next
// pending market from the notifier.
func (d *Detector) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.loop(ctx)
	}
}

// Close waits for all worker goroutines to exit.
func (d *Detector) Close() {
	d.wg.Wait()
}

func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		marketID, ok := d.notifier.Next(ctx)
		if !ok {
			return
		}
		start := time.Now()
		d.evaluate(ctx, marketID)
		DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

func (d *Detector) reject(marketID, reason string) {
	OpportunitiesRejectedTotal.WithLabelValues(reason).Inc()
	if d.bus != nil {
		d.bus.Publish(eventbus.OpportunityRejected, eventbus.OpportunityRejectedPayload{
			MarketID: marketID,
			Reason:   reason,
		})
	}
}

// evaluate re-reads both legs of marketID and runs the full margin-check
// accept pipeline. Each call is independent: a stale or missing book, a
// margin below threshold, or a risk-gate rejection all simply drop the
// signal, since another notify will arrive on the next book change.
func (d *Detector) evaluate(ctx context.Context, marketID string) {
	market, ok := d.registry.Get(marketID)
	if !ok {
		return
	}

	upSnap, ok := d.store.Snapshot(market.UpToken)
	if !ok {
		return
	}
	downSnap, ok := d.store.Snapshot(market.DownToken)
	if !ok {
		return
	}

	now := d.cfg.Clock.Now()
	if !upSnap.IsFresh(now, d.cfg.FreshnessTTL) || !downSnap.IsFresh(now, d.cfg.FreshnessTTL) {
		d.reject(marketID, "book_stale")
		return
	}

	if upSnap.BestAskPrice <= 0 || downSnap.BestAskPrice <= 0 {
		return
	}

	latestUpdate := upSnap.LastUpdated
	if downSnap.LastUpdated.After(latestUpdate) {
		latestUpdate = downSnap.LastUpdated
	}
	EndToEndLatencySeconds.Observe(now.Sub(latestUpdate).Seconds())

	ticksPerUnit := ticks.PerUnit(market.TickSize)
	askUpTicks := ticks.FromPrice(upSnap.BestAskPrice, market.TickSize)
	askDownTicks := ticks.FromPrice(downSnap.BestAskPrice, market.TickSize)
	feeReserveTicks := ticks.FeeReserveTicks(market.FeeBpsTaker, askUpTicks, askDownTicks)
	minMarginTicks := int64(d.cfg.MinProfitMargin * float64(ticksPerUnit))

	check := ticks.ArbitrageCheck{
		AskUpTicks:      askUpTicks,
		AskDownTicks:    askDownTicks,
		FeeReserveTicks: feeReserveTicks,
		MinMarginTicks:  minMarginTicks,
		TicksPerUnit:    ticksPerUnit,
	}
	if !check.Accepted() {
		d.reject(marketID, "margin_below_threshold")
		return
	}

	size := upSnap.BestAskSize
	if downSnap.BestAskSize < size {
		size = downSnap.BestAskSize
	}
	if size > d.cfg.MaxSize {
		size = d.cfg.MaxSize
	}
	if size < d.cfg.MinSize {
		d.reject(marketID, "size_too_small")
		return
	}

	opp := NewOpportunity(
		market.MarketID, market.UpToken, market.DownToken,
		upSnap.BestAskPrice, upSnap.BestAskSize, upSnap.Seq,
		downSnap.BestAskPrice, downSnap.BestAskSize, downSnap.Seq,
		check.MarginTicks(), ticksPerUnit, market.FeeBpsTaker,
		market.ExpiryTS,
	)

	reservation, reason := d.gate.Evaluate(market.MarketID, upSnap.BestAskPrice, downSnap.BestAskPrice, size)
	if reason != risk.RejectNone {
		d.reject(marketID, string(reason))
		return
	}

	OpportunitiesDetectedTotal.Inc()
	OpportunityProfitBPS.Observe(float64(check.MarginTicks()) / float64(ticksPerUnit) * 10000)
	OpportunitySizeUSD.Observe(reservation.Notional)
	NetProfitBPS.Observe(float64(opp.NetProfitBPS))

	if d.storage != nil {
		if err := d.storage.StoreOpportunity(ctx, opp); err != nil {
			d.logger.Error("failed-to-store-opportunity", zap.String("opportunity-id", opp.ID), zap.Error(err))
		}
	}

	if d.bus != nil {
		d.bus.Publish(eventbus.OpportunityDetected, eventbus.OpportunityDetectedPayload{
			MarketID:    market.MarketID,
			AskUp:       upSnap.BestAskPrice,
			AskDown:     downSnap.BestAskPrice,
			Size:        reservation.Notional,
			MarginTicks: check.MarginTicks(),
			DetectedAt:  opp.DetectedAt,
		})
	}

	select {
	case d.outCh <- Detected{Opportunity: opp, Reservation: reservation}:
		d.logger.Info("arbitrage-opportunity-detected",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-id", market.MarketID),
			zap.Int("net-profit-bps", opp.NetProfitBPS),
			zap.Float64("size", reservation.Notional))
	default:
		// Execution can't keep up: give the bankroll back rather than hold
		// a reservation nobody will ever act on.
		d.logger.Warn("opportunity-channel-full", zap.String("market-id", market.MarketID))
		d.gate.Release(reservation.ID, 0)
	}
}
