// Package rank keeps a TTL-bounded cache of player league standings backed by
// the match store. A stale entry is served when a refresh fails.
package rank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"riftledger/internal/riot"
	"riftledger/internal/store"
)

const (
	// DefaultTTL is how long a fetched rank stays fresh.
	DefaultTTL = 24 * time.Hour
	// DefaultDelay spaces sequential league fetches.
	DefaultDelay = 150 * time.Millisecond

	// Riot PUUIDs are 78 characters; anything much shorter is a bot slot or
	// a malformed payload.
	minPUUIDLength = 70
)

// API is the league lookup the cache refreshes from.
type API interface {
	GetRankedEntriesByPUUID(ctx context.Context, puuid string) ([]riot.LeagueEntryResponse, error)
}

// Store is the persistence the cache reads and writes.
type Store interface {
	GetMatch(ctx context.Context, matchID string) (*store.MatchRecord, error)
	GetRank(ctx context.Context, puuid string) (*store.RankRecord, error)
	UpsertRank(ctx context.Context, rec *store.RankRecord) error
	FreshRankPUUIDs(ctx context.Context, since time.Time) ([]string, error)
}

// FetchResult summarizes a rank backfill.
type FetchResult struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// Cache serves player ranks from the store and refreshes them from the API.
type Cache struct {
	api    API
	store  Store
	ttl    time.Duration
	delay  time.Duration
	policy riot.RetryPolicy
	now    func() time.Time
	log    *zap.SugaredLogger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window used by FetchRanksForNewMatches.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithDelay sets the pause between sequential fetches.
func WithDelay(d time.Duration) Option {
	return func(c *Cache) { c.delay = d }
}

// WithRetryPolicy overrides the per-player retry policy.
func WithRetryPolicy(p riot.RetryPolicy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Cache) { c.log = log }
}

// NewCache creates a rank cache.
func NewCache(api API, st Store, opts ...Option) *Cache {
	c := &Cache{
		api:    api,
		store:  st,
		ttl:    DefaultTTL,
		delay:  DefaultDelay,
		policy: riot.DefaultRetryPolicy(),
		now:    time.Now,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPlayerRank returns the player's rank, refreshing it when the cached
// entry is older than maxAge. When the refresh fails the cached entry is
// returned regardless of age; with nothing cached the result is nil.
func (c *Cache) GetPlayerRank(ctx context.Context, puuid string, maxAge time.Duration) (*store.RankRecord, error) {
	cached, err := c.store.GetRank(ctx, puuid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		cached = nil
	case err != nil:
		return nil, fmt.Errorf("read cached rank: %w", err)
	case c.now().Sub(cached.FetchedAt) <= maxAge:
		return cached, nil
	}

	fresh, err := c.refresh(ctx, puuid)
	if err != nil {
		c.log.Warnw("rank refresh failed, serving cache", "puuid", shortID(puuid), "cached", cached != nil, "error", err)
		return cached, nil
	}
	return fresh, nil
}

// FetchRanksForNewMatches refreshes the rank of every distinct player seen in
// the given matches, skipping players whose cached rank is still fresh.
// Players are fetched one at a time; a failure is counted and skipped. An
// invalid API key stops the pass.
func (c *Cache) FetchRanksForNewMatches(ctx context.Context, matchIDs []string, onProgress func(done, total int)) (FetchResult, error) {
	var result FetchResult

	var players []string
	for _, id := range matchIDs {
		rec, err := c.store.GetMatch(ctx, id)
		if err != nil {
			c.log.Debugw("skip match for rank backfill", "match", id, "error", err)
			continue
		}
		players = append(players, participantsOf(rec.RawDetail)...)
	}
	players = lo.Uniq(players)

	fresh, err := c.store.FreshRankPUUIDs(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return result, fmt.Errorf("list fresh ranks: %w", err)
	}
	pending := lo.Without(players, fresh...)
	result.Total = len(pending)

	for i, puuid := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 && c.delay > 0 {
			time.Sleep(c.delay)
		}

		if _, err := c.refresh(ctx, puuid); err != nil {
			result.Failed++
			c.log.Warnw("rank fetch failed", "puuid", shortID(puuid), "error", err)
			if riot.IsAPIKeyError(err) {
				return result, err
			}
		} else {
			result.Fetched++
		}
		if onProgress != nil {
			onProgress(i+1, result.Total)
		}
	}

	c.log.Infow("rank backfill complete", "fetched", result.Fetched, "failed", result.Failed, "total", result.Total)
	return result, nil
}

// refresh fetches league entries with retries and stores them.
func (c *Cache) refresh(ctx context.Context, puuid string) (*store.RankRecord, error) {
	entries, err := riot.Retry(ctx, c.policy, func(ctx context.Context) ([]riot.LeagueEntryResponse, error) {
		return c.api.GetRankedEntriesByPUUID(ctx, puuid)
	})
	if err != nil {
		return nil, err
	}

	rec := FromEntries(puuid, entries, c.now())
	if err := c.store.UpsertRank(ctx, rec); err != nil {
		return nil, fmt.Errorf("store rank: %w", err)
	}
	return rec, nil
}

// FromEntries folds league entries into a rank record. Queues other than
// solo and flex are ignored; an unranked player has both nil.
func FromEntries(puuid string, entries []riot.LeagueEntryResponse, fetchedAt time.Time) *store.RankRecord {
	rec := &store.RankRecord{PUUID: puuid, FetchedAt: fetchedAt}
	for _, e := range entries {
		qr := &store.QueueRank{
			Tier:     e.Tier,
			Division: e.Rank,
			LP:       e.LeaguePoints,
			Wins:     e.Wins,
			Losses:   e.Losses,
		}
		switch e.QueueType {
		case riot.QueueTypeSolo:
			rec.Solo = qr
		case riot.QueueTypeFlex:
			rec.Flex = qr
		}
	}
	return rec
}

// participantsOf extracts well-formed participant PUUIDs from a raw detail.
func participantsOf(raw []byte) []string {
	match, err := riot.DecodeMatch(raw)
	if err != nil {
		return nil
	}
	ids := append([]string{}, match.Metadata.Participants...)
	for _, p := range match.Info.Participants {
		ids = append(ids, p.PUUID)
	}
	return lo.Filter(ids, func(id string, _ int) bool {
		return len(id) >= minPUUIDLength
	})
}

func shortID(puuid string) string {
	if len(puuid) <= 12 {
		return puuid
	}
	return puuid[:8] + "..." + puuid[len(puuid)-4:]
}
