package stats

import (
	"fmt"

	"riftledger/internal/riot"
)

// View resolves the subject inside one match and indexes the timeline by
// event kind and by in-match participant id. Build one per analysis; it is
// read-only afterwards.
type View struct {
	Match     *riot.MatchResponse
	Timeline  *riot.TimelineResponse // nil when no timeline is stored
	Subject   *riot.MatchParticipant
	SubjectID int

	idByPUUID map[string]int
	teamOf    map[int]int
	byKind    map[riot.EventKind][]riot.TimelineEvent
	deaths    map[int][]riot.TimelineEvent
	kills     map[int][]riot.TimelineEvent
}

// NewView builds a view for the given subject. tl may be nil.
func NewView(match *riot.MatchResponse, tl *riot.TimelineResponse, puuid string) (*View, error) {
	subject, ok := match.Participant(puuid)
	if !ok {
		return nil, fmt.Errorf("participant %s not in match %s", puuid, match.Metadata.MatchID)
	}

	v := &View{
		Match:     match,
		Timeline:  tl,
		Subject:   subject,
		idByPUUID: make(map[string]int, len(match.Info.Participants)),
		teamOf:    make(map[int]int, len(match.Info.Participants)),
		byKind:    make(map[riot.EventKind][]riot.TimelineEvent),
		deaths:    make(map[int][]riot.TimelineEvent),
		kills:     make(map[int][]riot.TimelineEvent),
	}

	// Timeline ids win when present; detail ids and slot order are fallbacks.
	for i := range match.Info.Participants {
		p := &match.Info.Participants[i]
		id := p.ParticipantID
		if id == 0 {
			id = i + 1
		}
		v.idByPUUID[p.PUUID] = id
	}
	if tl != nil {
		for _, tp := range tl.Info.Participants {
			if tp.PUUID != "" && tp.ParticipantID > 0 {
				v.idByPUUID[tp.PUUID] = tp.ParticipantID
			}
		}
	}
	for i := range match.Info.Participants {
		p := &match.Info.Participants[i]
		v.teamOf[v.idByPUUID[p.PUUID]] = p.TeamID
	}
	v.SubjectID = v.idByPUUID[puuid]

	if tl != nil {
		for _, ev := range Events(tl) {
			v.byKind[ev.Type] = append(v.byKind[ev.Type], ev)
			if ev.Type == riot.EventChampionKill {
				v.deaths[ev.VictimID] = append(v.deaths[ev.VictimID], ev)
				if ev.KillerID > 0 {
					v.kills[ev.KillerID] = append(v.kills[ev.KillerID], ev)
				}
			}
		}
	}

	return v, nil
}

// HasTimeline reports whether timeline data backs this view.
func (v *View) HasTimeline() bool {
	return v.Timeline != nil && len(v.Timeline.Info.Frames) > 0
}

// ParticipantID returns the in-match id for a participant of this match.
func (v *View) ParticipantID(p *riot.MatchParticipant) int {
	return v.idByPUUID[p.PUUID]
}

// TeamOf returns the team id of an in-match participant id (0 if unknown).
func (v *View) TeamOf(participantID int) int {
	return v.teamOf[participantID]
}

// Team returns the participants of a team in slot order.
func (v *View) Team(teamID int) []*riot.MatchParticipant {
	var out []*riot.MatchParticipant
	for i := range v.Match.Info.Participants {
		if v.Match.Info.Participants[i].TeamID == teamID {
			out = append(out, &v.Match.Info.Participants[i])
		}
	}
	return out
}

// AllyIDs returns the subject's teammates' in-match ids, excluding the subject.
func (v *View) AllyIDs() []int {
	var out []int
	for _, p := range v.Team(v.Subject.TeamID) {
		if id := v.ParticipantID(p); id != v.SubjectID {
			out = append(out, id)
		}
	}
	return out
}

// LaneOpponent is the enemy sharing the subject's position label. An empty
// label never matches.
func (v *View) LaneOpponent() *riot.MatchParticipant {
	if v.Subject.TeamPosition == "" {
		return nil
	}
	for _, p := range v.Team(EnemyTeam(v.Subject.TeamID)) {
		if p.TeamPosition == v.Subject.TeamPosition {
			return p
		}
	}
	return nil
}

// EventsOf returns all events of a kind in timeline order.
func (v *View) EventsOf(kind riot.EventKind) []riot.TimelineEvent {
	return v.byKind[kind]
}

// DeathsOf returns the champion kills where the participant was the victim.
func (v *View) DeathsOf(participantID int) []riot.TimelineEvent {
	return v.deaths[participantID]
}

// KillsBy returns the champion kills where the participant landed the kill.
func (v *View) KillsBy(participantID int) []riot.TimelineEvent {
	return v.kills[participantID]
}

// TakedownsBy returns champion kills the participant killed or assisted on.
func (v *View) TakedownsBy(participantID int) []riot.TimelineEvent {
	var out []riot.TimelineEvent
	for _, ev := range v.byKind[riot.EventChampionKill] {
		if ev.Involves(participantID) {
			out = append(out, ev)
		}
	}
	return out
}

// TeamMonsterKills returns elite monster kills credited to a team, either
// through killerTeamId or through a killer or assister on that team.
func (v *View) TeamMonsterKills(teamID int) []riot.TimelineEvent {
	var out []riot.TimelineEvent
	for _, ev := range v.byKind[riot.EventEliteMonsterKill] {
		if v.creditedTo(ev, teamID) {
			out = append(out, ev)
		}
	}
	return out
}

func (v *View) creditedTo(ev riot.TimelineEvent, teamID int) bool {
	if ev.KillerTeamID != 0 {
		return ev.KillerTeamID == teamID
	}
	if v.teamOf[ev.KillerID] == teamID {
		return true
	}
	for _, id := range ev.AssistingParticipantIDs {
		if v.teamOf[id] == teamID {
			return true
		}
	}
	return false
}

// TeamObjectives returns the team's elite monster kills plus the enemy
// structures it destroyed. BUILDING_KILL's teamId names the losing side.
func (v *View) TeamObjectives(teamID int) []riot.TimelineEvent {
	out := v.TeamMonsterKills(teamID)
	for _, ev := range v.byKind[riot.EventBuildingKill] {
		if ev.TeamID != 0 && ev.TeamID != teamID {
			out = append(out, ev)
		}
	}
	return out
}
