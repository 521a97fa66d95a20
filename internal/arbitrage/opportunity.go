package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Opportunity is a detected arbitrage window on a single binary market: the
// sum of the UP ask and DOWN ask is below 1 minus fees and the configured
// margin.
type Opportunity struct {
	ID          string
	MarketID    string
	UpTokenID   string
	DownTokenID string
	DetectedAt  time.Time
	ExpiryTS    time.Time

	AskUp     float64
	AskUpSize float64
	SeqUp     int64

	AskDown     float64
	AskDownSize float64
	SeqDown     int64

	PriceSum     float64
	MarginTicks  int64
	TicksPerUnit int64
	FeeBPS       int

	MaxTradeSize    float64
	EstimatedProfit float64
	TotalFees       float64
	NetProfit       float64
	NetProfitBPS    int
}

// NewOpportunity builds an Opportunity from both legs' asks and the
// margin already computed by internal/ticks. feeBPS is the market's taker
// fee in basis points, used for TotalFees and NetProfit; MaxTradeSize is the
// smaller of the two ask sizes, which the risk gate may trim further.
// expiryTS is the market's resolution time, carried through so the
// Execution Engine can pick a leg strategy from time-to-resolution.
func NewOpportunity(
	marketID, upTokenID, downTokenID string,
	askUp, askUpSize float64, seqUp int64,
	askDown, askDownSize float64, seqDown int64,
	marginTicks, ticksPerUnit int64,
	feeBPS int,
	expiryTS time.Time,
) *Opportunity {
	priceSum := askUp + askDown

	maxSize := askUpSize
	if askDownSize < maxSize {
		maxSize = askDownSize
	}

	totalCost := priceSum * maxSize
	totalFees := totalCost * (float64(feeBPS) / 10000.0)
	grossProfit := (1.0 - priceSum) * maxSize
	netProfit := grossProfit - totalFees

	netProfitBPS := 0
	if maxSize > 0 {
		netProfitBPS = int((netProfit / maxSize) * 10000)
	}

	return &Opportunity{
		ID:              uuid.New().String(),
		MarketID:        marketID,
		UpTokenID:       upTokenID,
		DownTokenID:     downTokenID,
		DetectedAt:      time.Now(),
		ExpiryTS:        expiryTS,
		AskUp:           askUp,
		AskUpSize:       askUpSize,
		SeqUp:           seqUp,
		AskDown:         askDown,
		AskDownSize:     askDownSize,
		SeqDown:         seqDown,
		PriceSum:        priceSum,
		MarginTicks:     marginTicks,
		TicksPerUnit:    ticksPerUnit,
		FeeBPS:          feeBPS,
		MaxTradeSize:    maxSize,
		EstimatedProfit: grossProfit,
		TotalFees:       totalFees,
		NetProfit:       netProfit,
		NetProfitBPS:    netProfitBPS,
	}
}

// String returns a human-readable representation of the opportunity.
func (o *Opportunity) String() string {
	return fmt.Sprintf(
		"Opportunity[%s] Market=%s Up=%.4f Down=%.4f Sum=%.4f MarginTicks=%d Size=%.2f Net=$%.2f",
		o.ID[:8],
		o.MarketID,
		o.AskUp,
		o.AskDown,
		o.PriceSum,
		o.MarginTicks,
		o.MaxTradeSize,
		o.NetProfit,
	)
}
