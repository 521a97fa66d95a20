package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// OrderbookMessage represents a message from the venue WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Seq       int64        `json:"seq,omitempty"` // venue-assigned sequence number, may be per-connection
	Timestamp int64        `json:"-"`              // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Parse timestamp from string to int64
	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		o.Timestamp = timestamp
	}

	return nil
}

// PriceLevel represents a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderbookSnapshot represents the current best-of-book state for a token (C3 Book).
type OrderbookSnapshot struct {
	MarketID     string
	TokenID      string
	Outcome      string // "UP" or "DOWN"
	BestBidPrice float64
	BestBidSize  float64
	BestAskPrice float64
	BestAskSize  float64
	Seq          int64 // strictly monotonic per token; set by the store, not the wire
	LastUpdated  time.Time
	Stale        bool // set by the feed ingestor on disconnect, cleared on fresh snapshot
}

// IsFresh reports whether the book is usable for a trading decision: not
// explicitly marked stale, and updated within ttl of now.
func (s *OrderbookSnapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s == nil || s.Stale {
		return false
	}
	return now.Sub(s.LastUpdated) <= ttl
}
