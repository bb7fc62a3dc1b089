package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"riftledger/internal/riot"
	"riftledger/internal/store"
)

// BackfillResult summarizes a maintenance pass.
type BackfillResult struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// BackfillTimelines fetches the timeline of every stored match that lacks
// one, one request at a time, and recomputes the match's derived stats from
// it. A failed fetch is counted and skipped; the pass never retries it. Only
// a rejected API key stops the pass early.
func (e *Engine) BackfillTimelines(ctx context.Context, onProgress ProgressFunc) (*BackfillResult, error) {
	ids, err := e.store.MatchIDsMissingTimeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("list matches without timeline: %w", err)
	}

	runID := uuid.NewString()
	result := &BackfillResult{Total: len(ids)}
	log := e.log.With("run", runID, "pass", "timelines")
	log.Infow("timeline backfill started", "total", len(ids))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 && e.cfg.TimelineDelay > 0 {
			time.Sleep(e.cfg.TimelineDelay)
		}

		if err := e.backfillTimeline(ctx, id); err != nil {
			result.Failed++
			e.metrics.backfillUnit("timelines", "failed")
			log.Warnw("timeline backfill failed", "match", id, "error", err)
			if riot.IsAPIKeyError(err) {
				return result, err
			}
		} else {
			result.Updated++
			e.metrics.backfillUnit("timelines", "updated")
		}
		onProgress.report(Progress{RunID: runID, Phase: "timelines", Done: i + 1, Total: result.Total, MatchID: id})
	}

	log.Infow("timeline backfill complete", "updated", result.Updated, "failed", result.Failed)
	return result, nil
}

func (e *Engine) backfillTimeline(ctx context.Context, matchID string) error {
	raw, err := e.api.GetTimelineRaw(ctx, matchID)
	if err != nil {
		return err
	}
	rec, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := e.store.SetTimeline(ctx, matchID, raw); err != nil {
		return err
	}
	return e.store.UpdateDerived(ctx, matchID, e.computer.Compute(rec.RawDetail, raw, rec.PUUID))
}

// BackfillAdvancedStats recomputes derived stats for every stored match that
// has a detail payload but no derived stats. It makes no external calls.
func (e *Engine) BackfillAdvancedStats(ctx context.Context, onProgress ProgressFunc) (*BackfillResult, error) {
	ids, err := e.store.MatchIDsMissingDerived(ctx)
	if err != nil {
		return nil, fmt.Errorf("list matches without derived stats: %w", err)
	}

	runID := uuid.NewString()
	result := &BackfillResult{Total: len(ids)}
	log := e.log.With("run", runID, "pass", "stats")

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := e.store.GetMatch(ctx, id)
		if err == nil {
			err = e.recomputeDerived(ctx, rec)
		}
		if err != nil {
			result.Failed++
			e.metrics.backfillUnit("stats", "failed")
			log.Warnw("stats backfill failed", "match", id, "error", err)
		} else {
			result.Updated++
			e.metrics.backfillUnit("stats", "updated")
		}
		onProgress.report(Progress{RunID: runID, Phase: "stats", Done: i + 1, Total: result.Total, MatchID: id})
	}

	log.Infow("stats backfill complete", "updated", result.Updated, "failed", result.Failed, "total", result.Total)
	return result, nil
}

// recomputeDerived stores freshly computed stats for rec. When the subject
// cannot be found in the detail, first_blood stays null and the record would
// be listed again on every pass, so that case is reported as a failure.
func (e *Engine) recomputeDerived(ctx context.Context, rec *store.MatchRecord) error {
	d := e.computer.Compute(rec.RawDetail, rec.RawTimeline, rec.PUUID)
	if d.FirstBlood == nil {
		return fmt.Errorf("subject %s not resolvable in match detail", rec.PUUID)
	}
	return e.store.UpdateDerived(ctx, rec.MatchID, d)
}
