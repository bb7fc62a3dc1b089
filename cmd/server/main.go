package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"riftledger/internal/app"
	"riftledger/internal/collector"
	"riftledger/internal/config"
	"riftledger/internal/httpapi"
	"riftledger/internal/logger"
	"riftledger/internal/riot"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port")
	flag.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "store driver (sqlite, libsql, postgres)")
	flag.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "store path or URL")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envFile != "" {
		log.Infow("loaded env file", "path", envFile)
	}

	if err := run(cfg, log); err != nil {
		log.Errorw("server stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx := collector.SetupSignalHandler(log, nil)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnw("close failed", "error", err)
		}
	}()

	rotator := a.KeyRotator()
	if err := a.CheckKey(ctx); err != nil {
		if rotator == nil || !riot.IsAPIKeyError(err) {
			return err
		}
		log.Warnw("api key rejected at startup, serving stored data while waiting for a new key")
		go rotateKey(ctx, rotator, log)
	}

	hub := httpapi.NewHub(log.Named("ws"))
	go hub.Run(ctx)

	onSyncDone := func(req httpapi.SyncRequest, result *collector.SyncResult, err error) {
		a.NotifySync(context.WithoutCancel(ctx), req.Player(), result, err)
		if rotator == nil {
			return
		}
		if err == nil {
			rotator.RecordSync(time.Now())
		} else if riot.IsAPIKeyError(err) {
			go rotateKey(ctx, rotator, log)
		}
	}

	api := httpapi.NewServer(a.Store, a.Engine, a.Ranks, a.Badges, hub,
		httpapi.WithLogger(log.Named("http")),
		httpapi.WithMetrics(a.Metrics),
		httpapi.WithRankMaxAge(cfg.RankTTL()),
		httpapi.WithSyncHook(onSyncDone),
		httpapi.WithBaseContext(ctx),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Infow("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown incomplete", "error", err)
	}

	// A running sync stops after its in-flight batch.
	api.Wait()
	return nil
}

func rotateKey(ctx context.Context, rotator *collector.KeyRotator, log *zap.SugaredLogger) {
	rotated, err := rotator.Rotate(ctx)
	switch {
	case err != nil:
		log.Errorw("api key rotation failed", "error", err)
	case rotated:
		log.Infow("syncing resumed with rotated key")
	}
}
