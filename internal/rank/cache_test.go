package rank

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftledger/internal/riot"
	"riftledger/internal/store"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeAPI) GetRankedEntriesByPUUID(_ context.Context, puuid string) ([]riot.LeagueEntryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[puuid]++
	if err := f.fail[puuid]; err != nil {
		return nil, err
	}
	return []riot.LeagueEntryResponse{
		{PUUID: puuid, QueueType: riot.QueueTypeSolo, Tier: "DIAMOND", Rank: "IV", LeaguePoints: 12, Wins: 40, Losses: 38},
		{PUUID: puuid, QueueType: "CHERRY", Tier: "GOLD", Rank: "I"},
	}, nil
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		n += c
	}
	return n
}

func puuid(n int) string {
	return fmt.Sprintf("p%077d", n)
}

func setup(t *testing.T, api API, now time.Time) (*Cache, *store.SQLStore) {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := NewCache(api, st,
		WithDelay(0),
		WithRetryPolicy(riot.RetryPolicy{Attempts: 1}),
		WithClock(func() time.Time { return now }),
	)
	return c, st
}

func TestGetPlayerRank_FreshCacheHit(t *testing.T) {
	api := newFakeAPI()
	now := time.UnixMilli(1767900000000)
	c, st := setup(t, api, now)
	ctx := context.Background()

	require.NoError(t, st.UpsertRank(ctx, &store.RankRecord{
		PUUID:     puuid(1),
		Solo:      &store.QueueRank{Tier: "GOLD", Division: "II", LP: 50},
		FetchedAt: now.Add(-time.Hour),
	}))

	got, err := c.GetPlayerRank(ctx, puuid(1), DefaultTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "GOLD", got.Solo.Tier)
	assert.Zero(t, api.total())
}

func TestGetPlayerRank_StaleRefreshes(t *testing.T) {
	api := newFakeAPI()
	now := time.UnixMilli(1767900000000)
	c, st := setup(t, api, now)
	ctx := context.Background()

	require.NoError(t, st.UpsertRank(ctx, &store.RankRecord{
		PUUID:     puuid(1),
		Solo:      &store.QueueRank{Tier: "GOLD", Division: "II", LP: 50},
		FetchedAt: now.Add(-48 * time.Hour),
	}))

	got, err := c.GetPlayerRank(ctx, puuid(1), DefaultTTL)
	require.NoError(t, err)
	require.NotNil(t, got.Solo)
	assert.Equal(t, "DIAMOND", got.Solo.Tier)
	assert.Nil(t, got.Flex)
	assert.Equal(t, 1, api.total())

	stored, err := st.GetRank(ctx, puuid(1))
	require.NoError(t, err)
	assert.Equal(t, "DIAMOND", stored.Solo.Tier)
	assert.True(t, now.Equal(stored.FetchedAt))
}

func TestGetPlayerRank_SoftFail(t *testing.T) {
	api := newFakeAPI()
	api.fail[puuid(1)] = riot.WrapHTTPError(503, "league")
	api.fail[puuid(2)] = riot.WrapHTTPError(503, "league")
	now := time.UnixMilli(1767900000000)
	c, st := setup(t, api, now)
	ctx := context.Background()

	require.NoError(t, st.UpsertRank(ctx, &store.RankRecord{
		PUUID:     puuid(1),
		Solo:      &store.QueueRank{Tier: "GOLD", Division: "II", LP: 50},
		FetchedAt: now.Add(-30 * 24 * time.Hour),
	}))

	got, err := c.GetPlayerRank(ctx, puuid(1), DefaultTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "GOLD", got.Solo.Tier)

	got, err = c.GetPlayerRank(ctx, puuid(2), DefaultTTL)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func storeMatch(t *testing.T, st *store.SQLStore, id string, players ...string) {
	t.Helper()
	m := riot.MatchResponse{Metadata: riot.MatchMetadata{MatchID: id, Participants: players}}
	for i, p := range players {
		m.Info.Participants = append(m.Info.Participants, riot.MatchParticipant{ParticipantID: i + 1, PUUID: p})
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, st.UpsertMatch(context.Background(), &store.MatchRecord{
		MatchID:      id,
		PUUID:        players[0],
		QueueID:      420,
		GameCreation: 1767900000000,
		RawDetail:    raw,
		ChampionName: "Ahri",
	}))
}

func TestFetchRanksForNewMatches(t *testing.T) {
	api := newFakeAPI()
	api.fail[puuid(4)] = riot.WrapHTTPError(404, "league")
	now := time.UnixMilli(1767900000000)
	c, st := setup(t, api, now)
	ctx := context.Background()

	storeMatch(t, st, "NA1_1", puuid(1), puuid(2), puuid(3), "BOT")
	storeMatch(t, st, "NA1_2", puuid(3), puuid(4), puuid(5))
	require.NoError(t, st.UpsertRank(ctx, &store.RankRecord{PUUID: puuid(5), FetchedAt: now.Add(-time.Hour)}))

	var progress [][2]int
	result, err := c.FetchRanksForNewMatches(ctx, []string{"NA1_1", "NA1_2", "missing"}, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, FetchResult{Fetched: 3, Failed: 1, Total: 4}, result)
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress)
	assert.Equal(t, 4, api.total())
	assert.Zero(t, api.calls[puuid(5)])
	assert.Zero(t, api.calls["BOT"])

	// Everyone fetched is now fresh; the failed player is retried
	result, err = c.FetchRanksForNewMatches(ctx, []string{"NA1_1", "NA1_2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Failed: 1, Total: 1}, result)
}

func TestFetchRanksForNewMatches_AbortsOnBadKey(t *testing.T) {
	api := newFakeAPI()
	api.fail[puuid(1)] = riot.WrapHTTPError(401, "league")
	c, st := setup(t, api, time.UnixMilli(1767900000000))

	storeMatch(t, st, "NA1_1", puuid(1), puuid(2))

	result, err := c.FetchRanksForNewMatches(context.Background(), []string{"NA1_1"}, nil)
	require.Error(t, err)
	assert.True(t, riot.IsAPIKeyError(err))
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, api.calls[puuid(2)])
}

func TestFromEntries(t *testing.T) {
	at := time.Now()
	rec := FromEntries("x", []riot.LeagueEntryResponse{
		{QueueType: riot.QueueTypeFlex, Tier: "SILVER", Rank: "III", LeaguePoints: 7},
	}, at)
	assert.Nil(t, rec.Solo)
	require.NotNil(t, rec.Flex)
	assert.Equal(t, store.QueueRank{Tier: "SILVER", Division: "III", LP: 7}, *rec.Flex)

	assert.Equal(t, &store.RankRecord{PUUID: "y", FetchedAt: at}, FromEntries("y", nil, at))
}
