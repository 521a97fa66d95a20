package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
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
	"github.com/mselser95/polymarket-arb/internal/storage"
	"github.com/mselser95/polymarket-arb/pkg/cache"
	"github.com/mselser95/polymarket-arb/pkg/clock"
	"github.com/mselser95/polymarket-arb/pkg/config"
	"github.com/mselser95/polymarket-arb/pkg/healthprobe"
	"github.com/mselser95/polymarket-arb/pkg/httpserver"
	"github.com/mselser95/polymarket-arb/pkg/wallet"
	"github.com/mselser95/polymarket-arb/pkg/websocket"
	"go.uber.org/zap"
)

// Discovery endpoint and limits aren't part of the trading engine's own
// config surface (market discovery is an external collaborator, not a core
// concern) so they're fixed defaults rather than env-tunable knobs.
const (
	gammaAPIDefaultURL        = "https://gamma-api.polymarket.com"
	discoveryMarketCap        = 200
	maxMarketDuration         = 48 * time.Hour
	walletTrackerPollInterval = time.Minute
	defaultTakerFeeBps        = 0 // Polymarket CLOB currently charges no taker fee on binary markets
	registrySweepPeriod       = 10 * time.Second
)

// New wires up every component and returns a ready-to-Run App.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	clk := clock.NewReal()

	healthChecker := healthprobe.New()
	bus := eventbus.New(logger)

	marketCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	metadataClient := markets.NewCachedMetadataClient(markets.NewMetadataClient(), marketCache)

	reg := registry.New(clk, logger)
	store := orderbook.New(clk, logger)
	notifier := feed.NewNotifier()

	wsMgr, source := setupFeedSource(cfg, logger, store, notifier, bus)
	ingestor := feed.NewIngestor(source, notifier)

	gate := risk.New(risk.Config{
		MaxBetSize:          cfg.MaxBetSize,
		MaxBankrollFraction: cfg.MaxBankrollFraction,
		MinNotional:         cfg.MinNotional,
		MinSize:             cfg.MinSize,
		ReservationTTL:      cfg.ReservationTTL,
		Clock:               clk,
		Logger:              logger,
	})

	arbStorage, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	detector := arbitrage.New(
		arbitrage.Config{
			MinProfitMargin: cfg.MinProfitMargin,
			MinSize:         cfg.MinSize,
			MaxSize:         cfg.MaxBetSize,
			FeeReserveBPS:   cfg.FeeReserveBPS,
			FreshnessTTL:    cfg.FreshnessTTL,
			Workers:         cfg.DetectorWorkers,
			Clock:           clk,
			Logger:          logger,
		},
		reg, store, notifier, gate, bus, arbStorage,
	)

	failureBreaker := circuitbreaker.NewFailureBreaker(circuitbreaker.FailureBreakerConfig{
		MaxFailures: cfg.CircuitBreakerMaxFailures,
		Window:      cfg.CircuitBreakerWindow,
		Cooldown:    cfg.CircuitBreakerCooldown,
		Logger:      logger,
	})

	executor, walletClient, balanceBreaker, walletTracker, err := setupExecutor(ctx, cfg, logger, detector, gate, bus, failureBreaker, clk)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup executor: %w", err)
	}

	discoveryService := discovery.New(&discovery.Config{
		Client:            discovery.NewClient(gammaAPIDefaultURL, logger),
		Cache:             marketCache,
		PollInterval:      cfg.DiscoveryPollInterval,
		MarketLimit:       discoveryMarketCap,
		MaxMarketDuration: maxMarketDuration,
		Logger:            logger,
		SingleMarket:      opts.SingleMarket,
	})

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Store:         store,
		Registry:      reg,
	})

	return &App{
		cfg:              cfg,
		logger:           logger,
		healthChecker:    healthChecker,
		httpServer:       httpServer,
		registry:         reg,
		store:            store,
		notifier:         notifier,
		ingestor:         ingestor,
		wsMgr:            wsMgr,
		discoveryService: discoveryService,
		metadataClient:   metadataClient,
		gate:             gate,
		bus:              bus,
		detector:         detector,
		executor:         executor,
		storage:          arbStorage,
		balanceBreaker:   balanceBreaker,
		failureBreaker:   failureBreaker,
		walletClient:     walletClient,
		walletTracker:    walletTracker,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// setupFeedSource picks the push (WebSocket) or poll (REST) transport per
// configuration. wsMgr is nil when polling, since nothing owns a live
// connection to shut down.
//
// The push transport is a sharded websocket.Pool rather than a single
// connection: tracking every live binary market means subscribing to two
// tokens per market, and a single socket becomes the bottleneck long before
// the rest of the pipeline does. Each token is hashed on its own to one of
// WSPoolSize connections, so a market's two tokens can land on different
// connections; the pool reports itself connected only while every
// connection is up.
func setupFeedSource(cfg *config.Config, logger *zap.Logger, store *orderbook.Store, notifier *feed.Notifier, bus *eventbus.Bus) (*websocket.Pool, feed.Source) {
	if !cfg.WSEnabled {
		return nil, feed.NewPollSource(feed.PollConfig{
			BaseURL:      cfg.VenueRESTURL,
			Store:        store,
			Notifier:     notifier,
			Clock:        clock.NewReal(),
			Logger:       logger,
			ScanInterval: cfg.ScanInterval,
			Concurrency:  cfg.PollConcurrency,
		})
	}

	wsPool := websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		WSUrl:                 cfg.VenueWSURL,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  2.0,
		MessageBufferSize:     1024,
		Logger:                logger,
	})
	return wsPool, feed.NewPushSource(wsPool, store, notifier, bus, logger)
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (arbitrage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}
	return storage.NewConsoleStorage(logger), nil
}

// setupExecutor builds the Execution Engine plus its two independent
// circuit breakers. The balance breaker is optional: it only stands up when
// a private key is available to derive the trading wallet's address. In
// dry-run mode no OrderClient is built at all, since no submission path
// will ever be exercised.
func setupExecutor(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	detector *arbitrage.Detector,
	gate *risk.Gate,
	bus *eventbus.Bus,
	failureBreaker *circuitbreaker.FailureBreaker,
	clk clock.Clock,
) (*execution.Executor, *wallet.Client, *circuitbreaker.BalanceCircuitBreaker, *wallet.Tracker, error) {
	mode := "live"
	if cfg.DryRun {
		mode = "paper"
	}

	var orderClient *execution.OrderClient
	var fillTracker *execution.FillTracker
	var walletClient *wallet.Client
	var balanceBreaker *circuitbreaker.BalanceCircuitBreaker
	var walletTracker *wallet.Tracker

	privateKeyHex := os.Getenv("POLYMARKET_PRIVATE_KEY")
	if mode != "paper" {
		if privateKeyHex == "" {
			return nil, nil, nil, nil, fmt.Errorf("POLYMARKET_PRIVATE_KEY must be set outside dry-run mode")
		}
		var err error
		orderClient, err = execution.NewOrderClient(&execution.OrderClientConfig{
			APIKey:     cfg.VenueAPIKey,
			Secret:     cfg.VenueAPISecret,
			Passphrase: cfg.VenuePassphrase,
			PrivateKey: privateKeyHex,
			Address:    cfg.WalletAddress,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("create order client: %w", err)
		}
		fillTracker = execution.NewFillTracker(orderClient, logger, &execution.FillTrackerConfig{
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			BackoffMult:    2.0,
			FillTimeout:    cfg.HedgeTimeout,
		})
	}

	if privateKeyHex != "" {
		address, err := deriveAddress(privateKeyHex)
		if err != nil {
			logger.Warn("balance-circuit-breaker-disabled-invalid-key", zap.Error(err))
		} else {
			rpcURL := os.Getenv("POLYGON_RPC_URL")
			if rpcURL == "" {
				rpcURL = "https://polygon-rpc.com"
			}
			walletClient, err = wallet.NewClient(rpcURL, logger)
			if err != nil {
				logger.Warn("balance-circuit-breaker-disabled-wallet-client-failed", zap.Error(err))
			} else {
				balanceBreaker, err = circuitbreaker.New(&circuitbreaker.Config{
					CheckInterval:   30 * time.Second,
					TradeMultiplier: 10.0,
					MinAbsolute:     cfg.MinNotional,
					HysteresisRatio: 1.5,
					WalletClient:    walletClient,
					Address:         address,
					Logger:          logger,
					OnBalance:       gate.SetBankrollTotal,
				})
				if err != nil {
					return nil, nil, nil, nil, fmt.Errorf("create balance circuit breaker: %w", err)
				}
				balanceBreaker.Start(ctx)

				walletTracker, err = wallet.New(&wallet.Config{
					Client:       walletClient,
					Address:      address,
					PollInterval: walletTrackerPollInterval,
					Logger:       logger,
				})
				if err != nil {
					logger.Warn("wallet-tracker-disabled", zap.Error(err))
					walletTracker = nil
				}
			}
		}
	}

	executor := execution.New(execution.Config{
		Mode:             mode,
		SubmitTimeout:    cfg.SubmitTimeout,
		AckTimeout:       cfg.AckTimeout,
		HedgeTimeout:     cfg.HedgeTimeout,
		MaxSlippageTicks: int64(cfg.MaxSlippageTicks),
		Workers:          cfg.SubmissionWorkers,
		Logger:           logger,
	}, detector.Opportunities(), orderClient, fillTracker, gate, bus, failureBreaker, clk)

	return executor, walletClient, balanceBreaker, walletTracker, nil
}

func deriveAddress(privateKeyHex string) (addr common.Address, err error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return addr, err
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return addr, fmt.Errorf("derive public key: unexpected key type")
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}
