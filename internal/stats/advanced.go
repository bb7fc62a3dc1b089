// Package stats derives per-match analytical fields from a raw match detail
// and an optional raw timeline.
package stats

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"riftledger/internal/riot"
)

// Derived holds the computed fields of one match. A nil field means the
// inputs could not support it (no timeline, no lane opponent, zero gold).
type Derived struct {
	CSDiff15        *int     `json:"csDiff15"`
	GoldDiff15      *int     `json:"goldDiff15"`
	XPDiff15        *int     `json:"xpDiff15"`
	FirstBlood      *int     `json:"firstBlood"`
	DamageGoldRatio *float64 `json:"damageGoldRatio"`
	IsolatedDeaths  *int     `json:"isolatedDeaths"`
	ObjectiveRate   *float64 `json:"objectiveRate"`
}

// Thresholds tune the timeline heuristics.
type Thresholds struct {
	// LaneMinute is the frame used for lane diffs.
	LaneMinute int
	// ProximityRadius is how close (map units) an ally must be for a death
	// not to count as isolated.
	ProximityRadius float64
	// ObjectiveWindow is how far either side of a death a team objective
	// excuses it.
	ObjectiveWindow time.Duration
	// RespawnWindow is how long a champion is assumed dead after dying.
	RespawnWindow time.Duration
}

// DefaultThresholds returns the standard heuristic constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LaneMinute:      15,
		ProximityRadius: 1500,
		ObjectiveWindow: 15 * time.Second,
		RespawnWindow:   30 * time.Second,
	}
}

// Computer derives advanced stats. It holds no per-match state and is safe
// for concurrent use.
type Computer struct {
	th  Thresholds
	log *zap.SugaredLogger
}

// NewComputer creates a Computer. A nil logger disables fault logging.
func NewComputer(th Thresholds, log *zap.SugaredLogger) *Computer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Computer{th: th, log: log}
}

// Compute is a total function: it never panics, and any failure only nils
// the affected field. Identical inputs always yield identical output.
func (c *Computer) Compute(rawDetail, rawTimeline []byte, puuid string) Derived {
	var d Derived

	match, err := riot.DecodeMatch(rawDetail)
	if err != nil {
		c.log.Debugw("undecodable detail", "error", err)
		return d
	}
	subject, ok := match.Participant(puuid)
	if !ok {
		return d
	}

	d.FirstBlood = c.guardInt("firstBlood", func() *int {
		return intPtr(firstBlood(subject))
	})
	d.DamageGoldRatio = c.guardFloat("damageGoldRatio", func() *float64 {
		return damageGoldRatio(subject)
	})

	if len(rawTimeline) == 0 {
		return d
	}
	tl, err := riot.DecodeTimeline(rawTimeline)
	if err != nil || len(tl.Info.Frames) == 0 {
		return d
	}

	m, err := NewView(match, tl, puuid)
	if err != nil {
		return d
	}
	if opp := m.LaneOpponent(); opp != nil {
		cs, gold, xp := c.laneDiffs(m, opp)
		d.CSDiff15, d.GoldDiff15, d.XPDiff15 = cs, gold, xp
	}
	d.IsolatedDeaths = c.guardInt("isolatedDeaths", func() *int {
		return intPtr(c.isolatedDeaths(m))
	})
	d.ObjectiveRate = c.guardFloat("objectiveRate", func() *float64 {
		return c.objectiveRate(m)
	})

	return d
}

// Compute derives stats with the default thresholds.
func Compute(rawDetail, rawTimeline []byte, puuid string) Derived {
	return NewComputer(DefaultThresholds(), nil).Compute(rawDetail, rawTimeline, puuid)
}

func firstBlood(p *riot.MatchParticipant) int {
	if p.FirstBloodKill || p.FirstBloodAssist {
		return 1
	}
	return 0
}

func damageGoldRatio(p *riot.MatchParticipant) *float64 {
	if p.GoldEarned == 0 {
		return nil
	}
	r := round(float64(p.TotalDamageDealtToChampions)/float64(p.GoldEarned), 3)
	return &r
}

// laneDiffs compares subject and opponent at the lane frame. All three are
// nil when either participant is missing from that frame.
func (c *Computer) laneDiffs(m *View, opp *riot.MatchParticipant) (cs, gold, xp *int) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnw("lane diff fault", "panic", fmt.Sprint(r))
			cs, gold, xp = nil, nil, nil
		}
	}()

	frame, ok := FrameAtMinute(m.Timeline, c.th.LaneMinute)
	if !ok {
		return nil, nil, nil
	}
	sf, ok := frame.Participant(m.SubjectID)
	if !ok {
		return nil, nil, nil
	}
	of, ok := frame.Participant(m.ParticipantID(opp))
	if !ok {
		return nil, nil, nil
	}
	return intPtr(sf.CS() - of.CS()), intPtr(sf.TotalGold - of.TotalGold), intPtr(sf.XP - of.XP)
}

// isolatedDeaths counts the subject's deaths with no living ally in range at
// the nearest frame and no team objective close in time. A death without a
// recorded position counts as isolated.
func (c *Computer) isolatedDeaths(m *View) int {
	var isolated int
	for _, death := range m.DeathsOf(m.SubjectID) {
		if death.Position == nil {
			isolated++
			continue
		}
		if c.objectiveNear(m, death.Timestamp) {
			continue
		}
		if !c.allyNear(m, death) {
			isolated++
		}
	}
	return isolated
}

func (c *Computer) objectiveNear(m *View, ts int64) bool {
	window := c.th.ObjectiveWindow.Milliseconds()
	for _, ev := range m.TeamObjectives(m.Subject.TeamID) {
		if abs64(ev.Timestamp-ts) <= window {
			return true
		}
	}
	return false
}

func (c *Computer) allyNear(m *View, death riot.TimelineEvent) bool {
	frame, ok := NearestFrame(m.Timeline, death.Timestamp)
	if !ok {
		return false
	}
	for _, ally := range m.AllyIDs() {
		if c.recentlyDead(m, ally, death.Timestamp) {
			continue
		}
		pf, ok := frame.Participant(ally)
		if !ok || pf.Position == nil {
			continue
		}
		if Distance(*pf.Position, *death.Position) <= c.th.ProximityRadius {
			return true
		}
	}
	return false
}

// recentlyDead reports a death of the participant within the respawn window
// ending at ts (inclusive).
func (c *Computer) recentlyDead(m *View, participantID int, ts int64) bool {
	window := c.th.RespawnWindow.Milliseconds()
	for _, d := range m.DeathsOf(participantID) {
		if d.Timestamp <= ts && ts-d.Timestamp <= window {
			return true
		}
	}
	return false
}

// objectiveRate is the percentage of the team's elite monster kills during
// which the subject was judged alive. Nil when the team took none.
func (c *Computer) objectiveRate(m *View) *float64 {
	monsters := m.TeamMonsterKills(m.Subject.TeamID)
	if len(monsters) == 0 {
		return nil
	}

	var alive int
	for _, ev := range monsters {
		if c.aliveAt(m, ev.Timestamp) {
			alive++
		}
	}
	r := round(float64(alive)*100/float64(len(monsters)), 1)
	return &r
}

// aliveAt: alive with no prior death, or once the respawn window has passed,
// or when the nearest frame places the subject outside their own fountain.
func (c *Computer) aliveAt(m *View, ts int64) bool {
	var (
		last  int64
		found bool
	)
	for _, d := range m.DeathsOf(m.SubjectID) {
		if d.Timestamp <= ts && (!found || d.Timestamp > last) {
			last, found = d.Timestamp, true
		}
	}
	if !found || ts-last > c.th.RespawnWindow.Milliseconds() {
		return true
	}
	pos, ok := PositionAt(m.Timeline, m.SubjectID, ts)
	return ok && !InFountain(m.Subject.TeamID, pos)
}

func (c *Computer) guardInt(field string, fn func() *int) (v *int) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnw("derived field fault", "field", field, "panic", fmt.Sprint(r))
			v = nil
		}
	}()
	return fn()
}

func (c *Computer) guardFloat(field string, fn func() *float64) (v *float64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnw("derived field fault", "field", field, "panic", fmt.Sprint(r))
			v = nil
		}
	}()
	return fn()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func intPtr(v int) *int {
	return &v
}
