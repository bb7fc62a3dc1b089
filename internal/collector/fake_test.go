package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"riftledger/internal/rank"
	"riftledger/internal/riot"
	"riftledger/internal/stats"
	"riftledger/internal/store"
)

const subjectPUUID = "subject-puuid"

var (
	seasonStart = time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC)
	positions   = []string{"TOP", "JUNGLE", "MIDDLE", "BOTTOM", "UTILITY"}
)

type fakeMatch struct {
	id       string
	creation int64 // epoch ms
	queue    int
}

// fakeAPI serves a fixed match history. The plain listing leaves out
// special queues unless overlap is set.
type fakeAPI struct {
	mu sync.Mutex

	matches []fakeMatch
	special map[int]bool
	overlap bool

	detailErr   map[string]error
	timelineErr map[string]error
	queueErr    map[int]error
	accounts    map[string]string

	detailCalls   map[string]int
	timelineCalls map[string]int
	queueCalls    map[int]int
}

func newFakeAPI(matches ...fakeMatch) *fakeAPI {
	return &fakeAPI{
		matches:       matches,
		special:       map[int]bool{1700: true},
		detailErr:     make(map[string]error),
		timelineErr:   make(map[string]error),
		queueErr:      make(map[int]error),
		accounts:      make(map[string]string),
		detailCalls:   make(map[string]int),
		timelineCalls: make(map[string]int),
		queueCalls:    make(map[int]int),
	}
}

func (f *fakeAPI) GetAccountByRiotID(_ context.Context, gameName, tagLine string) (*riot.AccountResponse, error) {
	puuid, ok := f.accounts[gameName+"#"+tagLine]
	if !ok {
		return nil, riot.WrapHTTPError(404, riot.EndpointAccount)
	}
	return &riot.AccountResponse{PUUID: puuid, GameName: gameName, TagLine: tagLine}, nil
}

func (f *fakeAPI) GetMatchIDs(_ context.Context, _ string, q riot.MatchIDQuery) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if q.Queue != 0 {
		f.queueCalls[q.Queue]++
		if err := f.queueErr[q.Queue]; err != nil {
			return nil, err
		}
	}

	sorted := append([]fakeMatch(nil), f.matches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].creation > sorted[j].creation })

	var ids []string
	for _, m := range sorted {
		secs := m.creation / 1000
		if q.StartTime > 0 && secs < q.StartTime {
			continue
		}
		if q.EndTime > 0 && secs > q.EndTime {
			continue
		}
		if q.Queue != 0 && m.queue != q.Queue {
			continue
		}
		if q.Queue == 0 && f.special[m.queue] && !f.overlap {
			continue
		}
		ids = append(ids, m.id)
	}

	if q.Start >= len(ids) {
		return []string{}, nil
	}
	end := min(q.Start+q.Count, len(ids))
	return ids[q.Start:end], nil
}

func (f *fakeAPI) find(id string) (fakeMatch, bool) {
	for _, m := range f.matches {
		if m.id == id {
			return m, true
		}
	}
	return fakeMatch{}, false
}

func (f *fakeAPI) GetMatchRaw(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	m, ok := f.find(id)
	if !ok {
		return nil, riot.WrapHTTPError(404, riot.EndpointMatch)
	}
	return json.Marshal(matchDetail(m))
}

func (f *fakeAPI) GetTimelineRaw(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelineCalls[id]++
	if err := f.timelineErr[id]; err != nil {
		return nil, err
	}
	if _, ok := f.find(id); !ok {
		return nil, riot.WrapHTTPError(404, riot.EndpointTimeline)
	}
	return json.Marshal(timeline(16))
}

func (f *fakeAPI) totalDetailCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.detailCalls {
		n += c
	}
	return n
}

func puuidOf(id int) string {
	if id == 3 {
		return subjectPUUID
	}
	return fmt.Sprintf("puuid-%02d", id)
}

// matchDetail puts the subject at id 3 (blue MIDDLE) facing id 8.
func matchDetail(m fakeMatch) *riot.MatchResponse {
	resp := &riot.MatchResponse{
		Metadata: riot.MatchMetadata{MatchID: m.id},
		Info: riot.MatchInfo{
			GameCreation: m.creation,
			GameDuration: 1800,
			GameVersion:  "16.1.700.1234",
			QueueID:      m.queue,
		},
	}
	for id := 1; id <= 10; id++ {
		team := 100
		if id > 5 {
			team = 200
		}
		resp.Metadata.Participants = append(resp.Metadata.Participants, puuidOf(id))
		resp.Info.Participants = append(resp.Info.Participants, riot.MatchParticipant{
			ParticipantID:               id,
			PUUID:                       puuidOf(id),
			ChampionID:                  id,
			ChampionName:                "Champ" + strconv.Itoa(id),
			TeamID:                      team,
			TeamPosition:                positions[(id-1)%5],
			Win:                         team == 100,
			Kills:                       id,
			Deaths:                      2,
			Assists:                     4,
			GoldEarned:                  10000 + id*100,
			TotalDamageDealtToChampions: 20000,
			VisionScore:                 20,
			TotalMinionsKilled:          150,
			FirstBloodKill:              id == 3,
			Item0:                       3157,
			Perks: riot.Perks{Styles: []riot.PerkStyle{
				{Description: "primaryStyle", Style: 8100, Selections: []riot.PerkSelection{{Perk: 8112}}},
				{Description: "subStyle", Style: 8300},
			}},
		})
	}
	return resp
}

// timeline gives the subject a 10 CS lead over the opponent in every frame.
func timeline(n int) *riot.TimelineResponse {
	tl := &riot.TimelineResponse{}
	for id := 1; id <= 10; id++ {
		tl.Info.Participants = append(tl.Info.Participants, riot.TimelineParticipant{ParticipantID: id, PUUID: puuidOf(id)})
	}
	for i := 0; i < n; i++ {
		frame := riot.TimelineFrame{Timestamp: int64(i) * 60000, ParticipantFrames: make(map[string]riot.ParticipantFrame)}
		for id := 1; id <= 10; id++ {
			cs := i * 7
			if id == 3 {
				cs += 10
			}
			frame.ParticipantFrames[strconv.Itoa(id)] = riot.ParticipantFrame{
				ParticipantID: id,
				Position:      &riot.Position{X: 7000, Y: 7000},
				TotalGold:     500 + i*400,
				XP:            i * 300,
				MinionsKilled: cs,
			}
		}
		tl.Info.Frames = append(tl.Info.Frames, frame)
	}
	return tl
}

// at returns an epoch-ms creation time days after season start.
func at(days float64) int64 {
	return seasonStart.Add(time.Duration(days * float64(24*time.Hour))).UnixMilli()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SeasonStart = seasonStart
	cfg.SpecialQueues = []int{1700}
	cfg.BatchPause = 0
	cfg.TimelineDelay = 0
	cfg.Retry = riot.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 1}
	cfg.Thresholds = stats.DefaultThresholds()
	return cfg
}

func setupStore(t *testing.T) *store.SQLStore {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeRanks struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeRanks) FetchRanksForNewMatches(_ context.Context, ids []string, onProgress func(done, total int)) (rank.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ids...)
	if onProgress != nil {
		onProgress(1, 1)
	}
	return rank.FetchResult{Fetched: 1, Total: 1}, nil
}

type fakeArchive struct {
	mu      sync.Mutex
	entries []any
}

func (f *fakeArchive) Append(entry any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}
