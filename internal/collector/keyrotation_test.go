package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyProvider struct {
	keys    []string
	started chan struct{}
	block   chan struct{}
}

func (p *fakeKeyProvider) AwaitValidKey(ctx context.Context, _ time.Time, check func(context.Context, string) error) (string, error) {
	if p.started != nil {
		close(p.started)
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for _, key := range p.keys {
		if err := check(ctx, key); err == nil {
			return key, nil
		}
	}
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeChecker struct{ valid string }

func (c fakeChecker) CheckKey(_ context.Context, key string) error {
	if key != c.valid {
		return errors.New("riot api key rejected")
	}
	return nil
}

type fakeInstaller struct {
	mu  sync.Mutex
	key string
}

func (i *fakeInstaller) SetAPIKey(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.key = key
}

type fakeNotifier struct {
	mu       sync.Mutex
	expired  []int
	lastSync []time.Time
	rotated  []string
}

func (n *fakeNotifier) SendKeyExpiredNotification(_ context.Context, stored int, _ time.Duration, lastSync time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, stored)
	n.lastSync = append(n.lastSync, lastSync)
	return nil
}

func (n *fakeNotifier) SendKeyRotatedNotification(_ context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rotated = append(n.rotated, key)
	return nil
}

func TestKeyRotator_InstallsFirstValidKey(t *testing.T) {
	provider := &fakeKeyProvider{keys: []string{"RGAPI-bad", "RGAPI-good"}}
	installer := &fakeInstaller{}
	notifier := &fakeNotifier{}
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := NewKeyRotator(provider, fakeChecker{valid: "RGAPI-good"}, installer,
		WithKeyNotifier(notifier),
		WithMatchCounter(func(context.Context) (int, error) { return 42, nil }),
	)
	r.RecordSync(synced)

	rotated, err := r.Rotate(context.Background())
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, "RGAPI-good", installer.key)
	assert.Equal(t, []int{42}, notifier.expired)
	assert.True(t, synced.Equal(notifier.lastSync[0]))
	assert.Equal(t, []string{"RGAPI-good"}, notifier.rotated)
	assert.False(t, r.Rotating())
}

func TestKeyRotator_TimesOut(t *testing.T) {
	provider := &fakeKeyProvider{keys: []string{"RGAPI-bad"}}
	installer := &fakeInstaller{}

	r := NewKeyRotator(provider, fakeChecker{valid: "RGAPI-good"}, installer, WithKeyWait(20*time.Millisecond))

	rotated, err := r.Rotate(context.Background())
	assert.False(t, rotated)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, installer.key)
}

func TestKeyRotator_SingleRotationAtATime(t *testing.T) {
	provider := &fakeKeyProvider{
		keys:    []string{"RGAPI-good"},
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	installer := &fakeInstaller{}
	r := NewKeyRotator(provider, fakeChecker{valid: "RGAPI-good"}, installer)

	done := make(chan error, 1)
	go func() {
		_, err := r.Rotate(context.Background())
		done <- err
	}()
	<-provider.started
	assert.True(t, r.Rotating())

	rotated, err := r.Rotate(context.Background())
	require.NoError(t, err)
	assert.False(t, rotated)

	close(provider.block)
	require.NoError(t, <-done)
	assert.Equal(t, "RGAPI-good", installer.key)
}
