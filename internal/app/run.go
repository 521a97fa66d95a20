package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.StorageMode),
		zap.Bool("dry-run", a.cfg.DryRun),
		zap.String("log-level", a.cfg.LogLevel))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("ws-enabled", a.cfg.WSEnabled))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give the HTTP server a moment to bind before the rest of the engine
	// starts issuing requests that depend on it being reachable.
	time.Sleep(100 * time.Millisecond)

	a.registry.Start(a.ctx, registrySweepPeriod)

	a.wg.Add(1)
	go a.runDiscoveryService()

	a.wg.Add(1)
	go a.handleNewMarkets()

	a.wg.Add(1)
	go a.watchRegistryRemovals(a.ctx)

	if a.wsMgr != nil {
		if err := a.wsMgr.Start(); err != nil {
			return fmt.Errorf("start websocket manager: %w", err)
		}
	}

	if err := a.ingestor.Start(a.ctx); err != nil {
		return fmt.Errorf("start feed ingestor: %w", err)
	}

	a.detector.Start(a.ctx)
	a.executor.Start(a.ctx)

	if a.walletTracker != nil {
		a.wg.Add(1)
		go a.runWalletTracker()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runDiscoveryService() {
	defer a.wg.Done()
	err := a.discoveryService.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("discovery-service-error", zap.Error(err))
	}
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.walletTracker.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
