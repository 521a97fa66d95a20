package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application in dependency order: stop
// accepting new opportunities, drain in-flight executions, then tear down
// the data plane underneath them.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.executor.Close()
	a.detector.Close()

	if err := a.ingestor.Stop(); err != nil {
		a.logger.Error("feed-ingestor-close-error", zap.Error(err))
	}
	if a.wsMgr != nil {
		if err := a.wsMgr.Close(); err != nil {
			a.logger.Error("websocket-manager-close-error", zap.Error(err))
		}
	}

	a.registry.Close()

	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")
	return nil
}
