package collector

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SetupSignalHandler creates a context that is cancelled on SIGTERM or SIGINT.
// The shutdown function runs before the context is cancelled. A second signal
// exits the process immediately.
func SetupSignalHandler(log *zap.SugaredLogger, shutdownFunc func(context.Context)) context.Context {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	return watchSignals(sigCh, log, shutdownFunc, func() { os.Exit(1) })
}

func watchSignals(sigCh <-chan os.Signal, log *zap.SugaredLogger, shutdownFunc func(context.Context), forceExit func()) context.Context {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sig := <-sigCh
		log.Infow("signal received, shutting down", "signal", sig.String())

		if shutdownFunc != nil {
			shutdownFunc(ctx)
		}
		cancel()

		sig = <-sigCh
		log.Warnw("second signal received, forcing exit", "signal", sig.String())
		forceExit()
	}()

	return ctx
}
