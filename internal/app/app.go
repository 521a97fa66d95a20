package app

import (
	"context"
	"sync"

	"github.com/mselser95/polymarket-arb/internal/arbitrage"
	"github.com/mselser95/polymarket-arb/internal/circuitbreaker"
	"github.com/mselser95/polymarket-arb/internal/discovery"
	"github.com/mselser95/polymarket-arb/internal/eventbus"
	"github.com/mselser95/polymarket-arb/internal/execution"
	"github.com/mselser95/polymarket-arb/internal/feed"
	"github.com/mselser95/polymarket-arb/internal/markets"
	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/internal/registry"
	"github.com/mselser95/polymarket-arb/internal/risk"
	"github.com/mselser95/polymarket-arb/pkg/config"
	"github.com/mselser95/polymarket-arb/pkg/healthprobe"
	"github.com/mselser95/polymarket-arb/pkg/httpserver"
	"github.com/mselser95/polymarket-arb/pkg/wallet"
	"github.com/mselser95/polymarket-arb/pkg/websocket"
	"go.uber.org/zap"
)

// App wires together the Market Registry, Orderbook Store, Feed Ingestor,
// Opportunity Detector, Risk Gate, Execution Engine and Event Bus into one
// runnable process, plus the ambient HTTP/health/storage surface around them.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	registry *registry.Registry
	store    *orderbook.Store
	notifier *feed.Notifier
	ingestor *feed.Ingestor
	wsMgr    *websocket.Pool // non-nil only when the push transport is active

	discoveryService *discovery.Service
	metadataClient   *markets.CachedMetadataClient

	gate           *risk.Gate
	bus            *eventbus.Bus
	detector       *arbitrage.Detector
	executor       *execution.Executor
	storage        arbitrage.Storage
	balanceBreaker *circuitbreaker.BalanceCircuitBreaker
	failureBreaker *circuitbreaker.FailureBreaker
	walletClient   *wallet.Client
	walletTracker  *wallet.Tracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // For debugging: slug of a single market to track
}
