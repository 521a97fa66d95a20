// Package ticks implements integer-tick price arithmetic: all
// arbitrage-boundary comparisons happen in int64 tick counts, scaled by
// 1/tick_size; conversions between prices and ticks go through
// shopspring/decimal so that they never silently truncate near the 1.0
// resolution boundary.
package ticks

import "github.com/shopspring/decimal"

// PerUnit returns ticks_per_unit = 1/tick_size for a given tick size.
func PerUnit(tickSize float64) int64 {
	if tickSize <= 0 {
		return 0
	}
	one := decimal.NewFromInt(1)
	ts := decimal.NewFromFloat(tickSize)
	return one.Div(ts).Round(0).IntPart()
}

// FromPrice converts a decimal price in [0,1] to an integer tick count at the
// given tick size, rounding to the nearest tick.
func FromPrice(price, tickSize float64) int64 {
	if tickSize <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	ts := decimal.NewFromFloat(tickSize)
	return p.Div(ts).Round(0).IntPart()
}

// ToPrice converts an integer tick count back to a decimal price.
func ToPrice(t int64, tickSize float64) float64 {
	ts := decimal.NewFromFloat(tickSize)
	f, _ := decimal.NewFromInt(t).Mul(ts).Float64()
	return f
}

// ArbitrageCheck evaluates the arbitrage-boundary condition entirely in
// integer ticks: askUp + askDown + feeReserve + minProfitMargin >=
// ticksPerUnit means reject (not strictly below 1). The exactly-equal case
// ("ask_up + ask_down exactly equal to 1 minus fees minus margin") is
// rejected, not accepted.
type ArbitrageCheck struct {
	AskUpTicks        int64
	AskDownTicks      int64
	FeeReserveTicks   int64
	MinMarginTicks    int64
	TicksPerUnit      int64
}

// MarginTicks returns (ticksPerUnit - askUp - askDown - feeReserve), the tick
// equivalent of `margin = 1 - ask_up - ask_down - fee_reserve`.
func (a ArbitrageCheck) MarginTicks() int64 {
	return a.TicksPerUnit - a.AskUpTicks - a.AskDownTicks - a.FeeReserveTicks
}

// Accepted reports whether the opportunity clears the minimum profit margin
// strictly; the boundary case margin == minMargin is rejected.
func (a ArbitrageCheck) Accepted() bool {
	return a.MarginTicks() > a.MinMarginTicks
}

// FeeReserveTicks computes fee_reserve in ticks: fee_bps/10000 * (askUp+askDown),
// rounded to the nearest tick.
func FeeReserveTicks(feeBps int, askUpTicks, askDownTicks int64) int64 {
	if feeBps <= 0 {
		return 0
	}
	sum := decimal.NewFromInt(askUpTicks + askDownTicks)
	bps := decimal.NewFromInt(int64(feeBps)).Div(decimal.NewFromInt(10000))
	return sum.Mul(bps).Round(0).IntPart()
}
