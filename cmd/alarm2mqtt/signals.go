package main

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// watchSignals cancels the main loop on the first signal. A first signal
// that arrives after the loop already ended is absorbed by the shutdown
// gate; only a second one forces the exit.
func watchSignals(sigs <-chan os.Signal, done <-chan struct{}, cancel context.CancelFunc, force func(), logger *zap.Logger) {
	received := 0
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			received++
			if received == 1 {
				logger.Info("signal received, shutting down, send it again to force", zap.Stringer("signal", sig))
				cancel()
				continue
			}
			logger.Warn("signal received again, forcing exit", zap.Stringer("signal", sig))
			force()
			return
		}
	}
}
