package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"riftledger/internal/archive"
	"riftledger/internal/rank"
	"riftledger/internal/riot"
	"riftledger/internal/stats"
	"riftledger/internal/store"
)

const (
	DefaultBatchSize     = 2
	DefaultBatchPause    = 350 * time.Millisecond
	DefaultTimelineDelay = 1200 * time.Millisecond

	// Gaps shorter than this before the oldest stored match are ignored.
	backfillGap = 24 * time.Hour

	bloomCapacity = 200000
)

// DefaultSeasonStart is the earliest creation time sync reaches back to.
var DefaultSeasonStart = time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC)

// DefaultSpecialQueues are queues the plain match-id listing leaves out:
// Arena (1700, 1710), URF (900) and Ultimate Spellbook (1900).
func DefaultSpecialQueues() []int {
	return []int{1700, 1710, 900, 1900}
}

// API is the slice of the Riot client the engine uses.
type API interface {
	GetAccountByRiotID(ctx context.Context, gameName, tagLine string) (*riot.AccountResponse, error)
	GetMatchIDs(ctx context.Context, puuid string, q riot.MatchIDQuery) ([]string, error)
	GetMatchRaw(ctx context.Context, matchID string) ([]byte, error)
	GetTimelineRaw(ctx context.Context, matchID string) ([]byte, error)
}

// RankBackfiller refreshes ranks for the players of newly stored matches.
type RankBackfiller interface {
	FetchRanksForNewMatches(ctx context.Context, matchIDs []string, onProgress func(done, total int)) (rank.FetchResult, error)
}

// Archiver receives a summary of every newly stored match.
type Archiver interface {
	Append(entry any) error
}

// Config tunes the engine.
type Config struct {
	SeasonStart   time.Time
	SpecialQueues []int
	BatchSize     int
	BatchPause    time.Duration
	TimelineDelay time.Duration
	Retry         riot.RetryPolicy
	Thresholds    stats.Thresholds
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		SeasonStart:   DefaultSeasonStart,
		SpecialQueues: DefaultSpecialQueues(),
		BatchSize:     DefaultBatchSize,
		BatchPause:    DefaultBatchPause,
		TimelineDelay: DefaultTimelineDelay,
		Retry:         riot.DefaultRetryPolicy(),
		Thresholds:    stats.DefaultThresholds(),
	}
}

// Outcome is how one match id resolved during sync.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeNew
	OutcomeUpdated
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	case OutcomeError:
		return "error"
	default:
		return "skipped"
	}
}

// Progress is reported after every processed unit or backfill step.
type Progress struct {
	RunID   string `json:"runId"`
	Phase   string `json:"phase"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	MatchID string `json:"matchId,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	RunID        string        `json:"runId"`
	PUUID        string        `json:"puuid"`
	NewMatches   int           `json:"newMatches"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Total        int           `json:"total"`
	NewMatchIDs  []string      `json:"newMatchIds"`
	RanksFetched int           `json:"ranksFetched"`
	Duration     time.Duration `json:"duration"`

	// OtherSubjectMatches counts stored records that belong to a different
	// player. Records are keyed by match id alone, so a shared match stays
	// attributed to whoever stored it first.
	OtherSubjectMatches int `json:"otherSubjectMatches,omitempty"`
}

// Engine synchronizes a player's match history into the store.
type Engine struct {
	api      API
	store    store.Store
	computer *stats.Computer
	cfg      Config
	log      *zap.SugaredLogger
	metrics  *Metrics
	ranks    RankBackfiller
	archive  Archiver

	seenMu sync.Mutex
	seen   *bloom.BloomFilter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records unit outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRankBackfill runs rank backfill for new matches at the end of a sync.
func WithRankBackfill(r RankBackfiller) Option {
	return func(e *Engine) { e.ranks = r }
}

// WithArchive appends a summary of every new match to a.
func WithArchive(a Archiver) Option {
	return func(e *Engine) { e.archive = a }
}

// NewEngine creates a sync engine.
func NewEngine(api API, st store.Store, cfg Config, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SeasonStart.IsZero() {
		cfg.SeasonStart = DefaultSeasonStart
	}
	e := &Engine{
		api:   api,
		store: st,
		cfg:   cfg,
		log:   zap.NewNop().Sugar(),
		seen:  bloom.NewWithEstimates(bloomCapacity, 0.001),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.computer = stats.NewComputer(cfg.Thresholds, e.log.Named("stats"))
	return e
}

// SyncByRiotID resolves "GameName#TagLine" and syncs that account.
func (e *Engine) SyncByRiotID(ctx context.Context, riotID string, onProgress ProgressFunc) (*SyncResult, error) {
	gameName, tagLine, ok := strings.Cut(riotID, "#")
	if !ok || gameName == "" || tagLine == "" {
		return nil, fmt.Errorf("invalid Riot ID %q: expected GameName#TagLine", riotID)
	}

	account, err := e.api.GetAccountByRiotID(ctx, gameName, tagLine)
	if err != nil {
		if errors.Is(err, riot.ErrNotFound) {
			return nil, fmt.Errorf("account %s not found", riotID)
		}
		return nil, fmt.Errorf("could not resolve account %s: %w", riotID, err)
	}
	return e.Sync(ctx, account.PUUID, onProgress)
}

// otherSubjectMatches counts stored records whose subject is not puuid.
// A failed count is logged and reported as zero.
func (e *Engine) otherSubjectMatches(ctx context.Context, puuid string) int {
	all, err := e.store.CountMatches(ctx, "")
	if err != nil {
		e.log.Debugw("count stored matches", "error", err)
		return 0
	}
	own, err := e.store.CountMatches(ctx, puuid)
	if err != nil {
		e.log.Debugw("count stored matches", "puuid", shortPUUID(puuid), "error", err)
		return 0
	}
	return all - own
}

type workItem struct {
	matchID string
	state   store.Completeness
}

// Sync discovers the player's match ids, fetches every match that is absent
// or incomplete in the store, and persists it. Per-match failures are counted
// and never abort the run; a rejected API key stops it after the in-flight
// batch and returns the partial result with the error.
func (e *Engine) Sync(ctx context.Context, puuid string, onProgress ProgressFunc) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{RunID: uuid.NewString(), PUUID: puuid, NewMatchIDs: []string{}}
	log := e.log.With("run", result.RunID, "puuid", shortPUUID(puuid))

	result.OtherSubjectMatches = e.otherSubjectMatches(ctx, puuid)
	if result.OtherSubjectMatches > 0 {
		log.Warnw("store already holds another player's matches; shared matches keep their first subject",
			"otherMatches", result.OtherSubjectMatches)
	}

	ids, err := e.discover(ctx, puuid, log)
	if err != nil {
		return result, err
	}
	result.Total = len(ids)
	log.Infow("match ids discovered", "total", len(ids))

	work, err := e.plan(ctx, ids, result)
	if err != nil {
		return result, err
	}
	onProgress.report(Progress{RunID: result.RunID, Phase: "sync", Done: result.Skipped, Total: result.Total})

	var fatal error
	done := result.Skipped
	for i := 0; i < len(work); i += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}
		if i > 0 && e.cfg.BatchPause > 0 {
			time.Sleep(e.cfg.BatchPause)
		}

		batch := work[i:min(i+e.cfg.BatchSize, len(work))]
		outcomes := make([]Outcome, len(batch))
		records := make([]*store.MatchRecord, len(batch))
		errs := make([]error, len(batch))

		// A started batch always runs to completion.
		bctx := context.WithoutCancel(ctx)
		var g errgroup.Group
		for j, item := range batch {
			g.Go(func() error {
				outcomes[j], records[j], errs[j] = e.processOne(bctx, puuid, item)
				return nil
			})
		}
		_ = g.Wait()

		for j, item := range batch {
			o := outcomes[j]
			e.metrics.unit(o)
			switch o {
			case OutcomeNew:
				result.NewMatches++
				result.NewMatchIDs = append(result.NewMatchIDs, item.matchID)
				e.archiveRecord(records[j])
			case OutcomeUpdated:
				result.Updated++
			case OutcomeError:
				result.Failed++
				log.Warnw("match failed", "match", item.matchID, "error", errs[j])
			}
			if riot.IsAPIKeyError(errs[j]) && fatal == nil {
				fatal = errs[j]
			}
			done++
			onProgress.report(Progress{
				RunID:   result.RunID,
				Phase:   "sync",
				Done:    done,
				Total:   result.Total,
				MatchID: item.matchID,
				Outcome: o.String(),
			})
		}
		if fatal != nil {
			break
		}
	}

	if fatal == nil && e.ranks != nil && len(result.NewMatchIDs) > 0 {
		fetched, err := e.ranks.FetchRanksForNewMatches(ctx, result.NewMatchIDs, func(d, t int) {
			onProgress.report(Progress{RunID: result.RunID, Phase: "ranks", Done: d, Total: t})
		})
		result.RanksFetched = fetched.Fetched
		if err != nil {
			log.Warnw("rank backfill failed", "error", err)
		}
	}

	result.Duration = time.Since(start)
	log.Infow("sync complete",
		"new", result.NewMatches,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"total", result.Total,
		"duration", result.Duration.Round(time.Millisecond),
	)
	if fatal != nil {
		return result, fmt.Errorf("sync aborted: %w", fatal)
	}
	return result, nil
}

// discover gathers every match id to consider, special queues first, with
// duplicates removed in first-seen order.
func (e *Engine) discover(ctx context.Context, puuid string, log *zap.SugaredLogger) ([]string, error) {
	seasonStart := e.cfg.SeasonStart.Unix()

	bounds, known, err := e.store.CreationBounds(ctx, puuid)
	if err != nil {
		return nil, fmt.Errorf("read sync cursor: %w", err)
	}

	var special []string
	for _, queue := range e.cfg.SpecialQueues {
		q := riot.MatchIDQuery{StartTime: seasonStart, Queue: queue}
		ids, err := riot.Retry(ctx, e.cfg.Retry, func(ctx context.Context) ([]string, error) {
			return e.listAll(ctx, puuid, q)
		})
		if err != nil {
			if riot.IsAPIKeyError(err) {
				return nil, err
			}
			e.metrics.specialQueueFailed()
			log.Warnw("special queue listing skipped", "queue", queue, "error", err)
			continue
		}
		special = append(special, ids...)
	}

	forwardFrom := seasonStart
	if known {
		forwardFrom = bounds.Newest/1000 + 1
	}
	forward, err := e.listAll(ctx, puuid, riot.MatchIDQuery{StartTime: forwardFrom})
	if err != nil {
		return nil, fmt.Errorf("list match ids: %w", err)
	}

	var backward []string
	if known && time.UnixMilli(bounds.Oldest).Sub(e.cfg.SeasonStart) > backfillGap {
		older, err := e.listAll(ctx, puuid, riot.MatchIDQuery{StartTime: seasonStart, EndTime: bounds.Oldest / 1000})
		if err != nil {
			return nil, fmt.Errorf("list older match ids: %w", err)
		}
		stored, err := e.store.KnownMatchIDs(ctx, puuid)
		if err != nil {
			return nil, fmt.Errorf("read known match ids: %w", err)
		}
		backward = lo.Without(older, stored...)
		log.Debugw("backward gap fill", "listed", len(older), "unknown", len(backward))
	}

	all := make([]string, 0, len(special)+len(forward)+len(backward))
	all = append(all, special...)
	all = append(all, forward...)
	all = append(all, backward...)
	return lo.Uniq(all), nil
}

// listAll pages through a match-id listing until a short page.
func (e *Engine) listAll(ctx context.Context, puuid string, q riot.MatchIDQuery) ([]string, error) {
	var out []string
	q.Count = riot.MatchIDPageSize
	for {
		page, err := e.api.GetMatchIDs(ctx, puuid, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < q.Count {
			return out, nil
		}
		q.Start += len(page)
	}
}

// plan splits ids into skipped (complete in store) and work items. The
// bloom filter, reseeded for this run, answers "definitely absent" without
// touching the store.
func (e *Engine) plan(ctx context.Context, ids []string, result *SyncResult) ([]workItem, error) {
	if err := e.seedSeen(ctx); err != nil {
		return nil, err
	}

	var work []workItem
	for _, id := range ids {
		if !e.maybeSeen(id) {
			work = append(work, workItem{matchID: id, state: store.Absent})
			continue
		}
		state, err := e.store.Lookup(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", id, err)
		}
		if state == store.Complete {
			result.Skipped++
			e.metrics.unit(OutcomeSkipped)
			continue
		}
		work = append(work, workItem{matchID: id, state: state})
	}
	return work, nil
}

// seedSeen rebuilds the filter from every stored match id. It runs at the
// start of each sync because other engines and processes may write to the
// same store between runs.
func (e *Engine) seedSeen(ctx context.Context) error {
	known, err := e.store.KnownMatchIDs(ctx, "")
	if err != nil {
		return fmt.Errorf("read known match ids: %w", err)
	}
	seen := bloom.NewWithEstimates(uint(max(bloomCapacity, 2*len(known))), 0.001)
	for _, id := range known {
		seen.AddString(id)
	}

	e.seenMu.Lock()
	e.seen = seen
	e.seenMu.Unlock()
	return nil
}

func (e *Engine) maybeSeen(id string) bool {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	return e.seen.TestString(id)
}

func (e *Engine) markSeen(id string) {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	e.seen.AddString(id)
}

// processOne fetches one match (and, best effort, its timeline) and stores it.
// A non-nil error with a non-error outcome means the match was stored but the
// key was rejected while fetching its timeline.
func (e *Engine) processOne(ctx context.Context, puuid string, item workItem) (Outcome, *store.MatchRecord, error) {
	rawDetail, err := e.api.GetMatchRaw(ctx, item.matchID)
	if err != nil {
		return OutcomeError, nil, fmt.Errorf("fetch match: %w", err)
	}

	// A rejected key on the timeline still lets the detail be stored; the
	// error is returned alongside the outcome so the run aborts.
	var keyErr error
	rawTimeline, err := e.api.GetTimelineRaw(ctx, item.matchID)
	if err != nil {
		if riot.IsAPIKeyError(err) {
			keyErr = fmt.Errorf("fetch timeline: %w", err)
		} else {
			e.log.Debugw("timeline unavailable", "match", item.matchID, "error", err)
		}
		rawTimeline = nil
	}

	rec, err := BuildRecord(puuid, rawDetail, rawTimeline, e.computer)
	if err != nil {
		return OutcomeError, nil, err
	}
	if err := e.store.UpsertMatch(ctx, rec); err != nil {
		return OutcomeError, nil, fmt.Errorf("store match: %w", err)
	}
	e.markSeen(item.matchID)

	if item.state == store.Incomplete {
		return OutcomeUpdated, rec, keyErr
	}
	return OutcomeNew, rec, keyErr
}

func (e *Engine) archiveRecord(rec *store.MatchRecord) {
	if e.archive == nil || rec == nil {
		return
	}
	if err := e.archive.Append(Summarize(rec)); err != nil {
		e.log.Warnw("archive append failed", "match", rec.MatchID, "error", err)
	}
}

func shortPUUID(puuid string) string {
	if len(puuid) <= 12 {
		return puuid
	}
	return puuid[:8] + "..." + puuid[len(puuid)-4:]
}

var _ Archiver = (*archive.Rotator)(nil)
