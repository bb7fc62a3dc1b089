// Package app wires the configured services together for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"riftledger/internal/archive"
	"riftledger/internal/badges"
	"riftledger/internal/collector"
	"riftledger/internal/config"
	"riftledger/internal/discord"
	"riftledger/internal/rank"
	"riftledger/internal/riot"
	"riftledger/internal/store"
)

// App holds every long-lived service of one process.
type App struct {
	Config    *config.Config
	Log       *zap.SugaredLogger
	Store     store.Store
	Client    *riot.Client
	Validator *riot.KeyValidator
	Metrics   *collector.Metrics
	Ranks     *rank.Cache
	Engine    *collector.Engine
	Badges    *badges.Evaluator

	// Optional, nil when not configured
	Archive   *archive.Rotator
	Webhook   *discord.WebhookClient
	KeyFinder *discord.KeyFinder
}

// New opens the store and builds the services described by cfg, which must
// already be validated.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: collector.NewMetrics(),
		Badges:  badges.NewEvaluator(log.Named("badges")),
	}

	client, err := riot.NewClient(cfg.Riot.APIKey,
		riot.WithRegion(cfg.Riot.Region),
		riot.WithPlatform(cfg.Riot.Platform),
		riot.WithRateLimit(cfg.Riot.RatePerSecond, riot.DefaultRateLimitBurst),
		riot.WithLogger(log.Named("riot")),
		riot.WithRequestObserver(a.Metrics.ObserveRiotRequest),
	)
	if err != nil {
		return nil, err
	}
	a.Client = client
	a.Validator = riot.NewKeyValidator(cfg.Riot.Platform,
		riot.WithValidationObserver(a.Metrics.ObserveRiotRequest),
	)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.Store = st

	a.Ranks = rank.NewCache(client, st,
		rank.WithTTL(cfg.RankTTL()),
		rank.WithDelay(cfg.RankDelay()),
		rank.WithLogger(log.Named("rank")),
	)

	engineOpts := []collector.Option{
		collector.WithLogger(log.Named("sync")),
		collector.WithMetrics(a.Metrics),
		collector.WithRankBackfill(a.Ranks),
	}
	if cfg.Archive.Dir != "" {
		archiveOpts := []archive.Option{
			archive.WithMaxAge(cfg.ArchiveMaxAge()),
			archive.WithLogger(log.Named("archive")),
		}
		if cfg.Archive.MaxEntries > 0 {
			archiveOpts = append(archiveOpts, archive.WithMaxEntries(cfg.Archive.MaxEntries))
		}
		rot, err := archive.NewRotator(cfg.Archive.Dir, archiveOpts...)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.Archive = rot
		engineOpts = append(engineOpts, collector.WithArchive(rot))
	}
	a.Engine = collector.NewEngine(client, st, cfg.EngineConfig(), engineOpts...)

	if cfg.Discord.WebhookURL != "" {
		a.Webhook = discord.NewWebhookClient(cfg.Discord.WebhookURL,
			discord.WithWebhookLogger(log.Named("discord")),
		)
	}
	if cfg.Discord.BotToken != "" {
		a.KeyFinder = discord.NewKeyFinder(cfg.Discord.BotToken, cfg.Discord.ChannelID,
			discord.WithKeyFinderLogger(log.Named("discord")),
		)
	}

	return a, nil
}

// CheckKey validates the configured API key against the platform.
func (a *App) CheckKey(ctx context.Context) error {
	return a.Validator.CheckKey(ctx, a.Config.Riot.APIKey)
}

// KeyRotator returns a rotator that takes replacement keys from the Discord
// channel, or nil when no bot token is configured.
func (a *App) KeyRotator() *collector.KeyRotator {
	if a.KeyFinder == nil {
		return nil
	}
	opts := []collector.KeyRotatorOption{
		collector.WithRotatorLogger(a.Log.Named("keys")),
		collector.WithMatchCounter(func(ctx context.Context) (int, error) {
			return a.Store.CountMatches(ctx, "")
		}),
	}
	if a.Webhook != nil {
		opts = append(opts, collector.WithKeyNotifier(a.Webhook))
	}
	return collector.NewKeyRotator(a.KeyFinder, a.Validator, a.Client, opts...)
}

// NotifySync posts a sync summary when a webhook is configured.
func (a *App) NotifySync(ctx context.Context, player string, result *collector.SyncResult, syncErr error) {
	if a.Webhook == nil {
		return
	}

	summary := discord.SyncSummary{Player: player, Err: syncErr, FinishedAt: time.Now()}
	if result != nil {
		summary.NewMatches = result.NewMatches
		summary.Updated = result.Updated
		summary.Failed = result.Failed
		summary.Total = result.Total
		summary.RanksFetched = result.RanksFetched
		summary.Duration = result.Duration
	}
	if n, err := a.Store.CountMatches(ctx, ""); err == nil {
		summary.StoredTotal = n
	}

	if err := a.Webhook.SendSyncSummary(ctx, summary); err != nil {
		a.Log.Warnw("failed to post sync summary", "error", err)
	}
}

// Close flushes the archive, compresses its warm files and closes the store.
func (a *App) Close() error {
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Log.Warnw("failed to close archive", "error", err)
		}
		if n, err := a.Archive.CompressWarm(); err != nil {
			a.Log.Warnw("failed to compress archive", "error", err)
		} else if n > 0 {
			a.Log.Infow("archive compressed", "files", n)
		}
	}
	return a.Store.Close()
}
