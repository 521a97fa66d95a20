package feed

import (
	"context"
)

// Ingestor is the C4 Feed Ingestor's public face: a thin wrapper around
// whichever Source is active (push or poll) plus the Notifier the detector
// reads from. The core never branches on which transport is live — it was
// decided once, at construction, from config.
type Ingestor struct {
	source   Source
	notifier *Notifier
}

// NewIngestor wraps an already-constructed Source.
func NewIngestor(source Source, notifier *Notifier) *Ingestor {
	return &Ingestor{source: source, notifier: notifier}
}

// Start starts the active source.
func (i *Ingestor) Start(ctx context.Context) error {
	return i.source.Start(ctx)
}

// Stop stops the active source.
func (i *Ingestor) Stop() error {
	return i.source.Stop()
}

// SetTokens updates the watched token set on the active source.
func (i *Ingestor) SetTokens(tokens []TokenRef) {
	i.source.SetTokens(tokens)
}

// MarkStale marks a single token's book stale on the active source.
func (i *Ingestor) MarkStale(tokenID string) {
	i.source.MarkStale(tokenID)
}

// Next blocks until a market has a pending update and returns its ID, for
// the detector to pull and re-evaluate.
func (i *Ingestor) Next(ctx context.Context) (marketID string, ok bool) {
	return i.notifier.Next(ctx)
}
