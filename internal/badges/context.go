package badges

import (
	"fmt"

	"riftledger/internal/riot"
	"riftledger/internal/stats"
)

// Context is the per-evaluation view every predicate reads. It is built once
// per Evaluate call and shared by all rules, so subject resolution agrees
// across the catalog.
type Context struct {
	*stats.View
}

// NewContext decodes the payloads and resolves the subject. A missing or
// undecodable timeline yields a context without timeline data.
func NewContext(rawDetail, rawTimeline []byte, puuid string) (*Context, error) {
	match, err := riot.DecodeMatch(rawDetail)
	if err != nil {
		return nil, err
	}

	var tl *riot.TimelineResponse
	if len(rawTimeline) > 0 {
		if decoded, err := riot.DecodeTimeline(rawTimeline); err == nil {
			tl = decoded
		}
	}

	view, err := stats.NewView(match, tl, puuid)
	if err != nil {
		return nil, fmt.Errorf("badge context: %w", err)
	}
	return &Context{View: view}, nil
}

// Participants returns every participant in the match.
func (c *Context) Participants() []*riot.MatchParticipant {
	out := make([]*riot.MatchParticipant, len(c.Match.Info.Participants))
	for i := range c.Match.Info.Participants {
		out[i] = &c.Match.Info.Participants[i]
	}
	return out
}

// isTop reports whether the subject's metric is at least every other
// participant's in the pool. Ties pass.
func (c *Context) isTop(pool []*riot.MatchParticipant, metric func(*riot.MatchParticipant) int) bool {
	mine := metric(c.Subject)
	for _, p := range pool {
		if metric(p) > mine {
			return false
		}
	}
	return true
}

// teamGold sums the team's total gold in a frame.
func (c *Context) teamGold(frame *riot.TimelineFrame, teamID int) int {
	var sum int
	for _, p := range c.Team(teamID) {
		if pf, ok := frame.Participant(c.ParticipantID(p)); ok {
			sum += pf.TotalGold
		}
	}
	return sum
}

// laneLeadAt returns subject-minus-opponent for a frame metric at a minute.
func (c *Context) laneLeadAt(minute int, metric func(riot.ParticipantFrame) int) (int, bool) {
	if !c.HasTimeline() {
		return 0, false
	}
	opp := c.LaneOpponent()
	if opp == nil {
		return 0, false
	}
	frame, ok := stats.FrameAtMinute(c.Timeline, minute)
	if !ok {
		return 0, false
	}
	mine, ok := frame.Participant(c.SubjectID)
	if !ok {
		return 0, false
	}
	theirs, ok := frame.Participant(c.ParticipantID(opp))
	if !ok {
		return 0, false
	}
	return metric(mine) - metric(theirs), true
}

// countWhere counts events of a kind matching fn.
func (c *Context) countWhere(kind riot.EventKind, fn func(riot.TimelineEvent) bool) int {
	var n int
	for _, ev := range c.EventsOf(kind) {
		if fn(ev) {
			n++
		}
	}
	return n
}

// killsWhere counts the subject's kills whose position satisfies fn.
func (c *Context) killsWhere(fn func(riot.Position) bool) int {
	var n int
	for _, ev := range c.KillsBy(c.SubjectID) {
		if ev.Position != nil && fn(*ev.Position) {
			n++
		}
	}
	return n
}
