package app

import (
	"context"

	"github.com/mselser95/polymarket-arb/internal/feed"
	"github.com/mselser95/polymarket-arb/internal/registry"
	"github.com/mselser95/polymarket-arb/pkg/types"
	"go.uber.org/zap"
)

// handleNewMarkets drains markets as the discovery collaborator finds them,
// registers each one, and re-derives the Feed Ingestor's watched token set
// from the registry's current live snapshot.
func (a *App) handleNewMarkets() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case market, ok := <-a.discoveryService.NewMarketsChan():
			if !ok {
				return
			}
			a.registerMarket(market)
		}
	}
}

func (a *App) registerMarket(market *types.Market) {
	upToken := market.GetTokenByOutcome("YES")
	downToken := market.GetTokenByOutcome("NO")
	if upToken == nil || downToken == nil {
		a.logger.Warn("market-missing-tokens", zap.String("market-id", market.ID), zap.String("slug", market.Slug))
		return
	}

	tickSize := market.TickSize
	if tickSize <= 0 {
		tickSize = 0.01
		if a.metadataClient != nil {
			fetched, _, err := a.metadataClient.GetTokenMetadata(a.ctx, upToken.TokenID)
			if err == nil && fetched > 0 {
				tickSize = fetched
			}
		}
	}

	err := a.registry.Add(registry.Market{
		MarketID:    market.ID,
		UpToken:     upToken.TokenID,
		DownToken:   downToken.TokenID,
		ExpiryTS:    market.EndDate,
		TickSize:    tickSize,
		FeeBpsTaker: defaultTakerFeeBps,
		FeeBpsMaker: defaultTakerFeeBps,
	})
	if err != nil {
		a.logger.Warn("market-registration-rejected", zap.String("market-id", market.ID), zap.Error(err))
		return
	}

	a.ingestor.SetTokens(a.watchedTokens())
	a.logger.Info("market-registered-for-trading", zap.String("market-id", market.ID), zap.String("slug", market.Slug))
}

// watchRegistryRemovals keeps the ingestor's watched set in sync when
// markets expire and are swept from the registry.
func (a *App) watchRegistryRemovals(ctx context.Context) {
	defer a.wg.Done()
	events, unsubscribe := a.registry.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type == registry.EventRemoved {
				a.ingestor.SetTokens(a.watchedTokens())
			}
		}
	}
}

func (a *App) watchedTokens() []feed.TokenRef {
	snapshot := a.registry.Snapshot()
	tokens := make([]feed.TokenRef, 0, len(snapshot)*2)
	for _, m := range snapshot {
		tokens = append(tokens,
			feed.TokenRef{TokenID: m.UpToken, MarketID: m.MarketID, Outcome: "UP"},
			feed.TokenRef{TokenID: m.DownToken, MarketID: m.MarketID, Outcome: "DOWN"},
		)
	}
	return tokens
}
