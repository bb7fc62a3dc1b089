// Package badges awards named achievements for one player's performance in
// one stored match. The catalog is a fixed, ordered table of predicates; the
// evaluator runs each in isolation and never lets one rule's failure affect
// another.
package badges

import (
	"fmt"

	"go.uber.org/zap"

	"riftledger/internal/store"
)

// Earned is a badge awarded for a match.
type Earned struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Evaluator runs the catalog against stored matches.
type Evaluator struct {
	catalog []Badge
	log     *zap.SugaredLogger
}

// NewEvaluator creates an Evaluator over the default catalog.
func NewEvaluator(log *zap.SugaredLogger) *Evaluator {
	return NewEvaluatorWithCatalog(Catalog(), log)
}

// NewEvaluatorWithCatalog creates an Evaluator over a custom catalog.
func NewEvaluatorWithCatalog(catalog []Badge, log *zap.SugaredLogger) *Evaluator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Evaluator{catalog: catalog, log: log}
}

// Evaluate returns the badges earned by the record's player, in catalog
// order. It fails only when the detail cannot be decoded or the player is
// not a participant.
func (e *Evaluator) Evaluate(rec *store.MatchRecord) ([]Earned, error) {
	return e.EvaluateRaw(rec.RawDetail, rec.RawTimeline, rec.PUUID)
}

// EvaluateRaw is Evaluate over raw payloads.
func (e *Evaluator) EvaluateRaw(rawDetail, rawTimeline []byte, puuid string) ([]Earned, error) {
	ctx, err := NewContext(rawDetail, rawTimeline, puuid)
	if err != nil {
		return nil, err
	}

	withTimeline := ctx.HasTimeline()
	earned := []Earned{}
	for _, b := range e.catalog {
		if b.NeedsTimeline && !withTimeline {
			continue
		}
		if e.check(b, ctx) {
			earned = append(earned, Earned{ID: b.ID, Name: b.Name, Description: b.Description})
		}
	}
	return earned, nil
}

// check runs one predicate; a panic counts as not earned.
func (e *Evaluator) check(b Badge, ctx *Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnw("badge predicate fault", "badge", b.ID, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return b.Predicate(ctx)
}
