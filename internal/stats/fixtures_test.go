package stats

import (
	"fmt"
	"strconv"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"riftledger/internal/riot"
)

var positions = []string{"TOP", "JUNGLE", "MIDDLE", "BOTTOM", "UTILITY"}

func puuidOf(id int) string {
	return fmt.Sprintf("puuid-%02d", id)
}

// newMatch builds a ten-player match: ids 1-5 on blue, 6-10 on red, each
// team covering the five positions in order.
func newMatch() *riot.MatchResponse {
	m := &riot.MatchResponse{
		Metadata: riot.MatchMetadata{MatchID: "NA1_100"},
		Info: riot.MatchInfo{
			GameCreation: 1767900000000,
			GameDuration: 1800,
			QueueID:      420,
		},
	}
	for id := 1; id <= 10; id++ {
		team := TeamBlue
		if id > 5 {
			team = TeamRed
		}
		m.Metadata.Participants = append(m.Metadata.Participants, puuidOf(id))
		m.Info.Participants = append(m.Info.Participants, riot.MatchParticipant{
			ParticipantID:               id,
			PUUID:                       puuidOf(id),
			ChampionName:                "Champ" + strconv.Itoa(id),
			TeamID:                      team,
			TeamPosition:                positions[(id-1)%5],
			Win:                         team == TeamBlue,
			Kills:                       id,
			Deaths:                      2,
			Assists:                     3,
			GoldEarned:                  10000 + id*100,
			TotalDamageDealtToChampions: 15000 + id*100,
			ChampLevel:                  14,
		})
	}
	return m
}

// newTimeline builds n minute frames. Every participant sits at a distinct
// spot far from the map center.
func newTimeline(n int) *riot.TimelineResponse {
	tl := &riot.TimelineResponse{}
	for id := 1; id <= 10; id++ {
		tl.Info.Participants = append(tl.Info.Participants, riot.TimelineParticipant{
			ParticipantID: id,
			PUUID:         puuidOf(id),
		})
	}
	for i := 0; i < n; i++ {
		frame := riot.TimelineFrame{
			Timestamp:         int64(i) * 60000,
			ParticipantFrames: make(map[string]riot.ParticipantFrame),
		}
		for id := 1; id <= 10; id++ {
			frame.ParticipantFrames[strconv.Itoa(id)] = riot.ParticipantFrame{
				ParticipantID: id,
				Position:      &riot.Position{X: id * 100, Y: 14000 - id*100},
				TotalGold:     500 + i*400,
				XP:            i * 300,
				MinionsKilled: i * 7,
			}
		}
		tl.Info.Frames = append(tl.Info.Frames, frame)
	}
	return tl
}

func setFrame(tl *riot.TimelineResponse, minute, id int, fn func(pf *riot.ParticipantFrame)) {
	key := strconv.Itoa(id)
	pf := tl.Info.Frames[minute].ParticipantFrames[key]
	fn(&pf)
	tl.Info.Frames[minute].ParticipantFrames[key] = pf
}

func addEvent(tl *riot.TimelineResponse, ev riot.TimelineEvent) {
	minute := int(ev.Timestamp / 60000)
	if minute >= len(tl.Info.Frames) {
		minute = len(tl.Info.Frames) - 1
	}
	tl.Info.Frames[minute].Events = append(tl.Info.Frames[minute].Events, ev)
}

func kill(ts int64, killer, victim int, pos *riot.Position, assists ...int) riot.TimelineEvent {
	return riot.TimelineEvent{
		Type:                    riot.EventChampionKill,
		Timestamp:               ts,
		KillerID:                killer,
		VictimID:                victim,
		Position:                pos,
		AssistingParticipantIDs: assists,
	}
}

func monster(ts int64, team, killer int, monsterType string) riot.TimelineEvent {
	return riot.TimelineEvent{
		Type:         riot.EventEliteMonsterKill,
		Timestamp:    ts,
		KillerID:     killer,
		KillerTeamID: team,
		MonsterType:  monsterType,
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
