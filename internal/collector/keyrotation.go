package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultKeyWait bounds how long a rotation waits for a replacement key.
const DefaultKeyWait = 24 * time.Hour

// KeyProvider supplies replacement API keys, e.g. from a Discord channel.
type KeyProvider interface {
	AwaitValidKey(ctx context.Context, since time.Time, check func(context.Context, string) error) (string, error)
}

// KeyChecker validates a candidate key against the Riot API.
type KeyChecker interface {
	CheckKey(ctx context.Context, apiKey string) error
}

// KeyInstaller swaps the key used by subsequent requests.
type KeyInstaller interface {
	SetAPIKey(apiKey string)
}

// KeyNotifier announces key expiry and rotation.
type KeyNotifier interface {
	SendKeyExpiredNotification(ctx context.Context, storedMatches int, uptime time.Duration, lastSync time.Time) error
	SendKeyRotatedNotification(ctx context.Context, apiKey string) error
}

// KeyRotator recovers from a rejected API key: it announces the expiry,
// waits for a replacement that passes validation, and installs it.
type KeyRotator struct {
	provider  KeyProvider
	checker   KeyChecker
	installer KeyInstaller
	notifier  KeyNotifier
	counter   func(ctx context.Context) (int, error)
	log       *zap.SugaredLogger
	wait      time.Duration
	now       func() time.Time

	startTime time.Time
	lastSync  atomic.Int64 // unix nanos, 0 = never
	mu        sync.Mutex
	rotating  bool
}

// KeyRotatorOption configures a KeyRotator.
type KeyRotatorOption func(*KeyRotator)

// WithKeyNotifier posts expiry and rotation notices.
func WithKeyNotifier(n KeyNotifier) KeyRotatorOption {
	return func(r *KeyRotator) { r.notifier = n }
}

// WithMatchCounter reports the stored match count in expiry notices.
func WithMatchCounter(fn func(ctx context.Context) (int, error)) KeyRotatorOption {
	return func(r *KeyRotator) { r.counter = fn }
}

// WithKeyWait bounds a single rotation.
func WithKeyWait(d time.Duration) KeyRotatorOption {
	return func(r *KeyRotator) { r.wait = d }
}

// WithRotatorLogger sets the logger.
func WithRotatorLogger(log *zap.SugaredLogger) KeyRotatorOption {
	return func(r *KeyRotator) { r.log = log }
}

// NewKeyRotator creates a rotator.
func NewKeyRotator(provider KeyProvider, checker KeyChecker, installer KeyInstaller, opts ...KeyRotatorOption) *KeyRotator {
	r := &KeyRotator{
		provider:  provider,
		checker:   checker,
		installer: installer,
		log:       zap.NewNop().Sugar(),
		wait:      DefaultKeyWait,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startTime = r.now()
	return r
}

// RecordSync notes a finished sync for the expiry notice.
func (r *KeyRotator) RecordSync(at time.Time) {
	r.lastSync.Store(at.UnixNano())
}

// Rotating reports whether a rotation is in progress.
func (r *KeyRotator) Rotating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotating
}

// Rotate blocks until a validated key is installed, ctx is done, or the
// wait bound passes. It returns (false, nil) without doing anything when
// another rotation is already running.
func (r *KeyRotator) Rotate(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.rotating {
		r.mu.Unlock()
		return false, nil
	}
	r.rotating = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.rotating = false
		r.mu.Unlock()
	}()

	since := r.now()
	r.log.Warnw("api key rejected, waiting for a replacement", "timeout", r.wait)
	r.notifyExpired(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	key, err := r.provider.AwaitValidKey(waitCtx, since, r.checker.CheckKey)
	if err != nil {
		return false, fmt.Errorf("wait for api key: %w", err)
	}

	r.installer.SetAPIKey(key)
	r.log.Infow("api key rotated")

	if r.notifier != nil {
		if err := r.notifier.SendKeyRotatedNotification(ctx, key); err != nil {
			r.log.Warnw("failed to send rotation notice", "error", err)
		}
	}
	return true, nil
}

func (r *KeyRotator) notifyExpired(ctx context.Context) {
	if r.notifier == nil {
		return
	}

	var stored int
	if r.counter != nil {
		n, err := r.counter(ctx)
		if err != nil {
			r.log.Debugw("count matches for expiry notice failed", "error", err)
		}
		stored = n
	}

	var last time.Time
	if ns := r.lastSync.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}

	if err := r.notifier.SendKeyExpiredNotification(ctx, stored, r.now().Sub(r.startTime), last); err != nil {
		r.log.Warnw("failed to send expiry notice", "error", err)
	}
}
