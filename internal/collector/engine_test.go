package collector

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftledger/internal/archive"
	"riftledger/internal/riot"
	"riftledger/internal/store"
)

func history() []fakeMatch {
	return []fakeMatch{
		{id: "NA1_1", creation: at(1), queue: 420},
		{id: "NA1_2", creation: at(2), queue: 420},
		{id: "NA1_3", creation: at(3), queue: 440},
		{id: "NA1_4", creation: at(4), queue: 1700},
		{id: "NA1_5", creation: at(5), queue: 420},
	}
}

func TestSync_FirstRunThenIdempotent(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	res, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.NewMatches)
	assert.Equal(t, 5, res.Total)
	assert.Zero(t, res.Failed)
	// Special queue ids are processed first
	assert.Equal(t, []string{"NA1_4", "NA1_5", "NA1_3", "NA1_2", "NA1_1"}, res.NewMatchIDs)
	assert.NotEmpty(t, res.RunID)

	n, err := st.CountMatches(ctx, subjectPUUID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	res, err = e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewMatches)
	assert.Empty(t, res.NewMatchIDs)
	assert.Equal(t, 5, api.totalDetailCalls())

	// A fresh engine with an empty filter agrees
	res, err = NewEngine(api, st, testConfig()).Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewMatches)
}

func TestSync_SeesWritesFromAnotherEngine(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	ctx := context.Background()

	// e1 builds its filter while the store is still empty
	e1 := NewEngine(api, st, testConfig())
	api.matches = nil
	res, err := e1.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	api.matches = history()
	res, err = NewEngine(api, st, testConfig()).Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	require.Equal(t, 5, res.NewMatches)

	res, err = e1.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewMatches)
	assert.Empty(t, res.NewMatchIDs)
	assert.Equal(t, res.Total, res.Skipped)
	assert.Equal(t, 5, api.totalDetailCalls())
}

func TestSync_StoresRecordFields(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	_, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)

	rec, err := st.GetMatch(context.Background(), "NA1_2")
	require.NoError(t, err)
	assert.Equal(t, "Champ3", rec.ChampionName)
	assert.Equal(t, "MIDDLE", rec.TeamPosition)
	assert.Equal(t, 420, rec.QueueID)
	assert.Equal(t, 150, rec.CS)
	assert.Equal(t, 3157, rec.Items[0])
	assert.Equal(t, 8112, rec.Keystone)
	assert.True(t, rec.HasTimeline())
	require.NotNil(t, rec.Derived.FirstBlood)
	assert.Equal(t, 1, *rec.Derived.FirstBlood)
	require.NotNil(t, rec.Derived.CSDiff15)
	assert.Equal(t, 10, *rec.Derived.CSDiff15)
}

func TestSync_NoDuplicatesWhenListingsOverlap(t *testing.T) {
	api := newFakeAPI(history()...)
	api.overlap = true
	st := setupStore(t)

	res, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.NewMatches)
	for id, calls := range api.detailCalls {
		assert.Equal(t, 1, calls, id)
	}
}

func TestSync_Paginates(t *testing.T) {
	var matches []fakeMatch
	for i := 0; i < 150; i++ {
		matches = append(matches, fakeMatch{id: fmt.Sprintf("NA1_%03d", i), creation: at(1) + int64(i)*60000, queue: 420})
	}
	api := newFakeAPI(matches...)
	st := setupStore(t)

	res, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 150, res.Total)
	assert.Equal(t, 150, res.NewMatches)
}

func TestSync_TimelineFailureStillPersists(t *testing.T) {
	api := newFakeAPI(history()...)
	api.timelineErr["NA1_2"] = riot.WrapHTTPError(503, riot.EndpointTimeline)
	st := setupStore(t)

	res, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.NewMatches)

	rec, err := st.GetMatch(context.Background(), "NA1_2")
	require.NoError(t, err)
	assert.False(t, rec.HasTimeline())
	assert.Nil(t, rec.Derived.CSDiff15)
	assert.NotNil(t, rec.Derived.FirstBlood)
	assert.NotNil(t, rec.Derived.DamageGoldRatio)
}

func TestSync_UnitErrorIsolated(t *testing.T) {
	api := newFakeAPI(history()...)
	api.detailErr["NA1_3"] = riot.WrapHTTPError(404, riot.EndpointMatch)
	st := setupStore(t)

	res, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.NewMatches)
	assert.Equal(t, 1, res.Failed)
	assert.NotContains(t, res.NewMatchIDs, "NA1_3")

	// A failed id behind the forward cursor is not rediscovered by a plain resync
	delete(api.detailErr, "NA1_3")
	res, err = NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewMatches)
}

func TestSync_APIKeyRejectedAbortsAfterBatch(t *testing.T) {
	api := newFakeAPI(history()...)
	api.detailErr["NA1_5"] = riot.WrapHTTPError(401, riot.EndpointMatch)
	st := setupStore(t)

	res, err := NewEngine(api, st, testConfig()).Sync(context.Background(), subjectPUUID, nil)
	require.Error(t, err)
	assert.True(t, riot.IsAPIKeyError(err))
	require.NotNil(t, res)
	// NA1_4 and NA1_5 share the first batch
	assert.Equal(t, 1, res.NewMatches)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, api.totalDetailCalls())
}

func TestSync_TimelineKeyRejectionKeepsDetail(t *testing.T) {
	api := newFakeAPI(history()...)
	api.timelineErr["NA1_4"] = riot.WrapHTTPError(403, riot.EndpointTimeline)
	st := setupStore(t)
	ctx := context.Background()

	res, err := NewEngine(api, st, testConfig()).Sync(ctx, subjectPUUID, nil)
	require.Error(t, err)
	assert.True(t, riot.IsAPIKeyError(err))
	// NA1_4 and NA1_5 share the first batch; both are stored
	assert.Equal(t, 2, res.NewMatches)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 2, api.totalDetailCalls())

	rec, err := st.GetMatch(ctx, "NA1_4")
	require.NoError(t, err)
	assert.False(t, rec.HasTimeline())
	assert.NotNil(t, rec.Derived.FirstBlood)
}

func TestSync_SpecialQueueFailureSkipped(t *testing.T) {
	api := newFakeAPI(history()...)
	api.queueErr[1700] = riot.WrapHTTPError(503, riot.EndpointMatchIDs)
	st := setupStore(t)

	m := NewMetrics()
	res, err := NewEngine(api, st, testConfig(), WithMetrics(m)).Sync(context.Background(), subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.NewMatches)
	assert.Equal(t, 3, api.queueCalls[1700])
}

func TestSync_BackwardGapFill(t *testing.T) {
	api := newFakeAPI(
		fakeMatch{id: "NA1_old1", creation: at(2), queue: 420},
		fakeMatch{id: "NA1_old2", creation: at(5), queue: 420},
		fakeMatch{id: "NA1_mid", creation: at(10), queue: 420},
		fakeMatch{id: "NA1_new", creation: at(12), queue: 420},
	)
	st := setupStore(t)
	ctx := context.Background()

	e := NewEngine(api, st, testConfig())
	raw, err := api.GetMatchRaw(ctx, "NA1_mid")
	require.NoError(t, err)
	rec, err := BuildRecord(subjectPUUID, raw, nil, e.computer)
	require.NoError(t, err)
	require.NoError(t, st.UpsertMatch(ctx, rec))

	res, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_new", "NA1_old2", "NA1_old1"}, res.NewMatchIDs)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, api.detailCalls["NA1_mid"])
}

func TestSync_ReportsOtherSubjectMatches(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	res, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Zero(t, res.OtherSubjectMatches)

	_, err = st.DB().ExecContext(ctx,
		`INSERT INTO matches (match_id, puuid, queue_id, game_creation) VALUES ('NA1_90', 'someone-else', 420, ?)`,
		at(1))
	require.NoError(t, err)

	res, err = e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OtherSubjectMatches)
	assert.Zero(t, res.NewMatches)
}

func TestSync_IncompleteRecordRefetched(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	ctx := context.Background()

	_, err := st.DB().ExecContext(ctx,
		`INSERT INTO matches (match_id, puuid, queue_id, game_creation) VALUES ('NA1_4', ?, 1700, ?)`,
		subjectPUUID, at(4))
	require.NoError(t, err)

	res, err := NewEngine(api, st, testConfig()).Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 4, res.NewMatches)
	assert.NotContains(t, res.NewMatchIDs, "NA1_4")

	state, err := st.Lookup(ctx, "NA1_4")
	require.NoError(t, err)
	assert.Equal(t, store.Complete, state)
}

func TestSync_ProgressAndHooks(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	ranks := &fakeRanks{}
	arch := &fakeArchive{}

	var mu sync.Mutex
	var events []Progress
	e := NewEngine(api, st, testConfig(), WithRankBackfill(ranks), WithArchive(arch))
	res, err := e.Sync(context.Background(), subjectPUUID, func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	})
	require.NoError(t, err)

	assert.Equal(t, res.NewMatchIDs, ranks.ids)
	assert.Equal(t, 1, res.RanksFetched)
	require.Len(t, arch.entries, 5)
	entry, ok := arch.entries[0].(archive.Entry)
	require.True(t, ok)
	assert.Equal(t, "NA1_4", entry.MatchID)

	var syncEvents, rankEvents int
	for _, p := range events {
		assert.Equal(t, res.RunID, p.RunID)
		switch p.Phase {
		case "sync":
			syncEvents++
		case "ranks":
			rankEvents++
		}
	}
	assert.Equal(t, 6, syncEvents)
	assert.Equal(t, 1, rankEvents)
	last := events[len(events)-2]
	assert.Equal(t, 5, last.Done)
	assert.Equal(t, 5, last.Total)
}

func TestSyncByRiotID(t *testing.T) {
	api := newFakeAPI(history()...)
	api.accounts["Faker#KR1"] = subjectPUUID
	e := NewEngine(api, setupStore(t), testConfig())
	ctx := context.Background()

	res, err := e.SyncByRiotID(ctx, "Faker#KR1", nil)
	require.NoError(t, err)
	assert.Equal(t, subjectPUUID, res.PUUID)
	assert.Equal(t, 5, res.NewMatches)

	_, err = e.SyncByRiotID(ctx, "NoTag", nil)
	assert.ErrorContains(t, err, "GameName#TagLine")

	_, err = e.SyncByRiotID(ctx, "Nobody#NA1", nil)
	assert.ErrorContains(t, err, "not found")
}

func TestSync_CancelledBeforeStart(t *testing.T) {
	api := newFakeAPI(history()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(api, setupStore(t), testConfig()).Sync(ctx, subjectPUUID, nil)
	assert.Error(t, err)
	assert.Zero(t, api.totalDetailCalls())
}
