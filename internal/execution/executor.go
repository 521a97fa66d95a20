package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/polymarket/go-order-utils/pkg/model"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-arb/internal/arbitrage"
	"github.com/mselser95/polymarket-arb/internal/circuitbreaker"
	"github.com/mselser95/polymarket-arb/internal/eventbus"
	"github.com/mselser95/polymarket-arb/internal/risk"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/types"
)

// state is the C7 execution lifecycle: INIT -> PREPARED -> LEGS_SUBMITTED ->
// (BOTH_ACKED | ABORT) -> MONITORING -> (COMPLETE | HEDGING) -> COMPLETE.
type state int

const (
	stateInit state = iota
	statePrepared
	stateLegsSubmitted
	stateBothAcked
	stateAbort
	stateMonitoring
	stateHedging
	stateComplete
)

// Config holds executor configuration.
type Config struct {
	Mode             string // "paper" or "live"
	SubmitTimeout    time.Duration
	AckTimeout       time.Duration
	HedgeTimeout     time.Duration
	MaxSlippageTicks int64
	Workers          int
	Logger           *zap.Logger
}

// Executor is the C7 Execution Engine: it takes a Detected opportunity (an
// Opportunity plus the bankroll Reservation the risk gate already opened for
// it) and drives both legs through submission, ack, fill monitoring, and
// partial-fill hedging to a terminal result.
type Executor struct {
	cfg         Config
	logger      *zap.Logger
	detected    <-chan arbitrage.Detected
	orderClient *OrderClient
	fillTracker *FillTracker
	gate        *risk.Gate
	bus         *eventbus.Bus
	breaker     *circuitbreaker.FailureBreaker
	clk         clock.Clock
	wg          sync.WaitGroup
}

// New constructs an Executor.
func New(cfg Config, detected <-chan arbitrage.Detected, orderClient *OrderClient, fillTracker *FillTracker, gate *risk.Gate, bus *eventbus.Bus, breaker *circuitbreaker.FailureBreaker, clk clock.Clock) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Executor{
		cfg:         cfg,
		logger:      cfg.Logger,
		detected:    detected,
		orderClient: orderClient,
		fillTracker: fillTracker,
		gate:        gate,
		bus:         bus,
		breaker:     breaker,
		clk:         clk,
	}
}

// Start launches cfg.Workers execution goroutines, each pulling one
// Detected opportunity at a time off the shared channel (at most one
// in-flight reservation per market already guarantees no two workers race
// on the same market's legs).
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.loop(ctx)
	}
}

// Close waits for all execution workers to exit.
func (e *Executor) Close() {
	e.wg.Wait()
}

func (e *Executor) loop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-e.detected:
			if !ok {
				return
			}
			start := time.Now()
			e.execute(ctx, d)
			ExecutionDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}
}

// legResult is the outcome of submitting one leg.
type legResult struct {
	Outcome    string // UP or DOWN
	TokenID    string
	OrderID    string
	Price      float64
	SizeFilled float64
	Err        error
}

// execute runs one opportunity through the full state machine.
func (e *Executor) execute(parentCtx context.Context, d arbitrage.Detected) {
	opp := d.Opportunity
	res := d.Reservation
	st := stateInit

	OpportunitiesReceived.Inc()

	if e.breaker != nil && !e.breaker.IsEnabled() {
		OpportunitiesSkippedTotal.WithLabelValues("circuit_breaker").Inc()
		e.gate.Release(res.ID, 0)
		return
	}

	st = statePrepared
	shares := opp.MaxTradeSize
	if opp.PriceSum > 0 {
		if byNotional := res.Notional / opp.PriceSum; byNotional < shares {
			shares = byNotional
		}
	}
	if shares <= 0 {
		e.gate.Release(res.ID, 0)
		return
	}

	upKey := deriveIdempotencyKey(opp.MarketID, "UP", res.ID, opp.SeqUp, opp.SeqDown)
	downKey := deriveIdempotencyKey(opp.MarketID, "DOWN", res.ID, opp.SeqUp, opp.SeqDown)
	e.logger.Debug("execution-prepared",
		zap.String("opportunity-id", opp.ID),
		zap.String("up-idempotency-key", upKey),
		zap.String("down-idempotency-key", downKey),
		zap.Float64("shares", shares))

	ctx, cancel := context.WithTimeout(parentCtx, e.cfg.SubmitTimeout)
	defer cancel()

	st = stateLegsSubmitted
	up, down := e.submitLegsParallel(ctx, opp, shares, upKey, downKey)

	if up.Err != nil || down.Err != nil {
		st = stateAbort
		e.abortLeg(parentCtx, up)
		e.abortLeg(parentCtx, down)
		e.recordFailure()
		OpportunitiesSkippedTotal.WithLabelValues("submit_failed").Inc()
		ExecutionErrorsTotal.Inc()
		e.gate.Release(res.ID, 0)
		e.logger.Warn("execution-aborted",
			zap.String("opportunity-id", opp.ID),
			zap.NamedError("up-error", up.Err),
			zap.NamedError("down-error", down.Err))
		return
	}

	st = stateBothAcked
	e.publishLeg(opp.MarketID, up, "submitted")
	e.publishLeg(opp.MarketID, down, "submitted")

	st = stateMonitoring
	var fillStatuses []types.FillStatus
	var err error
	if e.cfg.Mode == "paper" {
		fillStatuses = e.simulateFills(up, down, shares)
	} else {
		fillStatuses, err = e.fillTracker.VerifyFills(
			ctx,
			[]string{up.OrderID, down.OrderID},
			[]string{up.Outcome, down.Outcome},
			[]float64{shares, shares},
		)
	}
	if err != nil {
		e.recordFailure()
		e.gate.Release(res.ID, 0)
		return
	}

	upFilled, downFilled := fillStatuses[0], fillStatuses[1]
	if upFilled.FullyFilled && downFilled.FullyFilled {
		st = stateComplete
		e.complete(parentCtx, opp, res, upFilled, downFilled)
		return
	}

	st = stateHedging
	e.logger.Debug("execution-state", zap.String("opportunity-id", opp.ID), zap.Int("state", int(st)))
	e.hedge(parentCtx, opp, res, up, down, upFilled, downFilled, shares)
}

// defaultTickSize approximates a tick size for rounding; real tick size comes
// from the Market Registry, but the executor only needs it for amount
// rounding precision, so a conservative default is safe when unknown.
const defaultTickSize = 0.01

// legOrder is one leg's chosen order type and submission price.
type legOrder struct {
	orderType string // "GTC" rests as maker, "FOK" crosses the spread as taker
	price     float64
}

// legPolicies picks each leg's order type from time-to-resolution (ttr),
// per the maker/taker strategy table: far from expiry both legs rest as
// maker; close to expiry both cross as taker with a widening slippage
// budget; in between, the leg with the deeper resting book takes maker
// while the other takes taker only if the margin comfortably covers
// double the taker fee.
func legPolicies(ttr time.Duration, opp *arbitrage.Opportunity) (up, down legOrder) {
	maker := func(ask float64) legOrder { return legOrder{orderType: "GTC", price: ask - defaultTickSize} }
	taker := func(ask float64) legOrder { return legOrder{orderType: "FOK", price: ask} }
	urgentTaker := func(ask float64) legOrder { return legOrder{orderType: "FOK", price: ask + defaultTickSize} }

	switch {
	case ttr > 120*time.Second:
		return maker(opp.AskUp), maker(opp.AskDown)
	case ttr > 60*time.Second:
		marginBPS := float64(opp.MarginTicks) / float64(opp.TicksPerUnit) * 10000
		other := maker
		if marginBPS > 2*float64(opp.FeeBPS) {
			other = taker
		}
		if opp.AskUpSize >= opp.AskDownSize {
			return maker(opp.AskUp), other(opp.AskDown)
		}
		return other(opp.AskUp), maker(opp.AskDown)
	case ttr > 30*time.Second:
		return taker(opp.AskUp), taker(opp.AskDown)
	default:
		return urgentTaker(opp.AskUp), urgentTaker(opp.AskDown)
	}
}

func (e *Executor) submitLegsParallel(ctx context.Context, opp *arbitrage.Opportunity, shares float64, upKey, downKey string) (up, down legResult) {
	ttr := opp.ExpiryTS.Sub(e.clk.Now())
	upPolicy, downPolicy := legPolicies(ttr, opp)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		up = e.submitLeg(ctx, opp.UpTokenID, "UP", upPolicy.price, shares, upPolicy.orderType, upKey)
	}()
	go func() {
		defer wg.Done()
		down = e.submitLeg(ctx, opp.DownTokenID, "DOWN", downPolicy.price, shares, downPolicy.orderType, downKey)
	}()
	wg.Wait()
	return up, down
}

// nonceFromIdempotencyKey derives a numeric order nonce from the
// idempotency key so that resubmitting the exact same (market, side,
// sequence pair, reservation) always signs and submits the same order
// instead of a fresh one.
func nonceFromIdempotencyKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return new(big.Int).SetBytes(sum[:8]).String()
}

func (e *Executor) submitLeg(ctx context.Context, tokenID, outcome string, price, shares float64, orderType, idempotencyKey string) legResult {
	sizePrecision, amountPrecision := getRoundingConfig(defaultTickSize)
	takerTokens := roundAmount(shares, sizePrecision)
	if takerTokens <= 0 {
		return legResult{Outcome: outcome, TokenID: tokenID, Err: fmt.Errorf("non-positive share count")}
	}

	if e.cfg.Mode == "paper" {
		// Paper mode never touches the network: it assumes the resting
		// order clears at the quoted price, so strategy logic can be
		// exercised without signing or submitting real orders.
		return legResult{
			Outcome:    outcome,
			TokenID:    tokenID,
			OrderID:    fmt.Sprintf("paper-%s-%d", outcome, e.clk.Now().UnixNano()),
			Price:      price,
			SizeFilled: takerTokens,
		}
	}

	makerUSD := roundAmount(takerTokens*price, amountPrecision)

	orderData := &model.OrderData{
		Maker:         e.orderClient.GetMakerAddress(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       tokenID,
		MakerAmount:   usdToRawAmount(makerUSD),
		TakerAmount:   usdToRawAmount(takerTokens),
		Side:          model.BUY,
		FeeRateBps:    "0",
		Nonce:         nonceFromIdempotencyKey(idempotencyKey),
		Signer:        e.orderClient.GetSignerAddress(),
		Expiration:    "0",
		SignatureType: e.orderClient.GetSignatureType(),
	}

	resp, err := e.orderClient.PlaceSingleOrder(ctx, orderData, orderType)
	if err != nil {
		return legResult{Outcome: outcome, TokenID: tokenID, Price: price, Err: err}
	}
	return legResult{Outcome: outcome, TokenID: tokenID, OrderID: resp.OrderID, Price: price}
}

// simulateFills fabricates fully-filled statuses for paper mode, since no
// real order was ever submitted to verify against.
func (e *Executor) simulateFills(up, down legResult, shares float64) []types.FillStatus {
	now := e.clk.Now()
	build := func(leg legResult) types.FillStatus {
		return types.FillStatus{
			OrderID:      leg.OrderID,
			Outcome:      leg.Outcome,
			OriginalSize: shares,
			SizeFilled:   leg.SizeFilled,
			ActualPrice:  leg.Price,
			Status:       "matched",
			FullyFilled:  leg.SizeFilled >= shares,
			VerifiedAt:   now,
		}
	}
	return []types.FillStatus{build(up), build(down)}
}

// verifyLegFill checks a single hedge leg's fill, short-circuiting network
// verification in paper mode the same way submitLeg short-circuits submission.
func (e *Executor) verifyLegFill(ctx context.Context, leg legResult, expectedSize float64) ([]types.FillStatus, error) {
	if e.cfg.Mode == "paper" {
		return []types.FillStatus{{
			OrderID:      leg.OrderID,
			Outcome:      leg.Outcome,
			OriginalSize: expectedSize,
			SizeFilled:   leg.SizeFilled,
			ActualPrice:  leg.Price,
			Status:       "matched",
			FullyFilled:  leg.SizeFilled >= expectedSize,
			VerifiedAt:   e.clk.Now(),
		}}, nil
	}
	return e.fillTracker.VerifyFills(ctx, []string{leg.OrderID}, []string{leg.Outcome}, []float64{expectedSize})
}

func (e *Executor) abortLeg(ctx context.Context, leg legResult) {
	if leg.OrderID == "" {
		return
	}
	if e.cfg.Mode != "paper" {
		if err := e.orderClient.CancelOrder(ctx, leg.OrderID); err != nil {
			e.logger.Warn("abort-leg-cancel-failed", zap.String("order-id", leg.OrderID), zap.Error(err))
		}
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.OrderCancelled, eventbus.OrderEventPayload{
			OrderID: leg.OrderID,
			Outcome: leg.Outcome,
			Status:  "cancelled",
		})
	}
}

func (e *Executor) publishLeg(marketID string, leg legResult, status string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.OrderSubmitted, eventbus.OrderEventPayload{
		MarketID: marketID,
		OrderID:  leg.OrderID,
		Outcome:  leg.Outcome,
		Price:    leg.Price,
		Status:   status,
	})
}

func (e *Executor) recordFailure() {
	if e.breaker != nil {
		e.breaker.RecordFailure(e.clk.Now())
	}
	ExecutionErrorsTotal.Inc()
}

func (e *Executor) complete(ctx context.Context, opp *arbitrage.Opportunity, res *risk.Reservation, up, down types.FillStatus) {
	realizedCost := up.ActualPrice*up.SizeFilled + down.ActualPrice*down.SizeFilled
	realizedProfit := up.SizeFilled - realizedCost // binary payout of $1 per fully-hedged share pair, minus cost
	if down.SizeFilled < up.SizeFilled {
		realizedProfit = down.SizeFilled - realizedCost
	}

	e.gate.Release(res.ID, realizedCost)
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}

	OpportunitiesExecuted.Inc()
	TradesTotal.WithLabelValues(e.cfg.Mode, "UP").Inc()
	TradesTotal.WithLabelValues(e.cfg.Mode, "DOWN").Inc()
	ProfitRealizedUSD.WithLabelValues(e.cfg.Mode).Add(realizedProfit)

	if e.bus != nil {
		e.bus.Publish(eventbus.ExecutionCompleted, eventbus.ExecutionCompletedPayload{
			MarketID:      opp.MarketID,
			ReservationID: res.ID,
			NetZero:       true,
			RealizedPnL:   realizedProfit,
			Duration:      time.Since(opp.DetectedAt),
		})
	}
	e.logger.Info("execution-completed",
		zap.String("opportunity-id", opp.ID),
		zap.Float64("realized-profit", realizedProfit))
	_ = ctx
}

// hedge resolves a partial fill: convert the unfilled remainder to a
// taker order at progressively steeper prices (up to two attempts), then an
// immediate hedge within the configured slippage budget, and finally a
// dump-at-best fallback that accepts whatever price clears the book and
// records a RiskIncident so the position is never left silently unhedged.
func (e *Executor) hedge(ctx context.Context, opp *arbitrage.Opportunity, res *risk.Reservation, up, down legResult, upFilled, downFilled types.FillStatus, shares float64) {
	tokenIDs := map[string]string{"UP": opp.UpTokenID, "DOWN": opp.DownTokenID}
	prices := map[string]float64{"UP": opp.AskUp, "DOWN": opp.AskDown}

	var unfilledOutcome string
	var remaining float64
	switch {
	case !upFilled.FullyFilled:
		unfilledOutcome = "UP"
		remaining = shares - upFilled.SizeFilled
	case !downFilled.FullyFilled:
		unfilledOutcome = "DOWN"
		remaining = shares - downFilled.SizeFilled
	default:
		return
	}
	if remaining <= 0 {
		return
	}

	basePrice := prices[unfilledOutcome]
	filled := false

	restingOrderID := up.OrderID
	if unfilledOutcome == "DOWN" {
		restingOrderID = down.OrderID
	}

	e.bus.Publish(eventbus.HedgeTriggered, eventbus.HedgeTriggeredPayload{
		MarketID: opp.MarketID, UnfilledOutcome: unfilledOutcome, SharesToHedge: remaining, Reason: "convert_to_taker",
	})
	// The unfilled leg is still resting as a maker order; cancel it before
	// re-sending marketable so the same shares can never fill twice.
	e.abortLeg(ctx, legResult{Outcome: unfilledOutcome, OrderID: restingOrderID})
	for attempt := 1; attempt <= 2 && remaining > 0; attempt++ {
		aggressivePrice := basePrice + float64(attempt)*defaultTickSize
		if aggressivePrice > 1.0 {
			aggressivePrice = 1.0
		}
		hedgeKey := deriveIdempotencyKey(opp.MarketID, fmt.Sprintf("%s-escalation-%d", unfilledOutcome, attempt), res.ID, opp.SeqUp, opp.SeqDown)
		leg := e.submitLeg(ctx, tokenIDs[unfilledOutcome], unfilledOutcome, aggressivePrice, remaining, "FOK", hedgeKey)
		if leg.Err != nil {
			continue
		}
		status, err := e.verifyLegFill(ctx, leg, remaining)
		if err == nil && len(status) == 1 {
			remaining -= status[0].SizeFilled
			if status[0].FullyFilled || remaining <= 0 {
				filled = true
			}
		}
	}

	if !filled && remaining > 0 {
		e.bus.Publish(eventbus.HedgeTriggered, eventbus.HedgeTriggeredPayload{
			MarketID: opp.MarketID, UnfilledOutcome: unfilledOutcome, SharesToHedge: remaining, Reason: "immediate_hedge",
		})
		slippagePrice := basePrice + float64(e.cfg.MaxSlippageTicks)*defaultTickSize
		if slippagePrice > 1.0 {
			slippagePrice = 1.0
		}
		hedgeKey := deriveIdempotencyKey(opp.MarketID, unfilledOutcome+"-immediate", res.ID, opp.SeqUp, opp.SeqDown)
		leg := e.submitLeg(ctx, tokenIDs[unfilledOutcome], unfilledOutcome, slippagePrice, remaining, "FOK", hedgeKey)
		if leg.Err == nil {
			status, err := e.verifyLegFill(ctx, leg, remaining)
			if err == nil && len(status) == 1 {
				remaining -= status[0].SizeFilled
				if status[0].FullyFilled || remaining <= 0 {
					filled = true
				}
			}
		}
	}

	if !filled && remaining > 0 {
		e.bus.Publish(eventbus.HedgeTriggered, eventbus.HedgeTriggeredPayload{
			MarketID: opp.MarketID, UnfilledOutcome: unfilledOutcome, SharesToHedge: remaining, Reason: "dump_at_best",
		})
		dumpKey := deriveIdempotencyKey(opp.MarketID, unfilledOutcome+"-dump", res.ID, opp.SeqUp, opp.SeqDown)
		e.submitLeg(ctx, tokenIDs[unfilledOutcome], unfilledOutcome, 1.0, remaining, "FOK", dumpKey)
		e.bus.Publish(eventbus.RiskIncident, eventbus.RiskIncidentPayload{
			MarketID:   opp.MarketID,
			Kind:       "PartialFillUnresolved",
			Detail:     fmt.Sprintf("%.4f shares of %s leg left unhedged after full escalation", remaining, unfilledOutcome),
			DetectedAt: e.clk.Now(),
		})
		e.logger.Error("hedge-escalation-exhausted",
			zap.String("opportunity-id", opp.ID),
			zap.String("outcome", unfilledOutcome),
			zap.Float64("remaining-shares", remaining))
	}

	realizedCost := upFilled.ActualPrice*upFilled.SizeFilled + downFilled.ActualPrice*downFilled.SizeFilled
	e.gate.Release(res.ID, realizedCost)
	e.recordFailure()
	ExecutionErrorsByType.WithLabelValues("partial_fill_hedge").Inc()
}

// deriveIdempotencyKey ties a submission attempt to the exact book state,
// side, and reservation that produced it: resubmitting for the same
// (market, side, sequence pair, reservation) must always yield the same key,
// so a retried submission never double-books a fill.
func deriveIdempotencyKey(marketID, side, reservationID string, seqUp, seqDown int64) string {
	h := sha256.New()
	h.Write([]byte(fmt.Sprintf("%s|%s|%d|%d|%s", marketID, side, seqUp, seqDown, reservationID)))
	return hex.EncodeToString(h.Sum(nil))
}
