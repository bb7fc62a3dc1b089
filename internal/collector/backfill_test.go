package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftledger/internal/riot"
	"riftledger/internal/stats"
)

func TestBackfillTimelines(t *testing.T) {
	api := newFakeAPI(history()...)
	for _, m := range history() {
		api.timelineErr[m.id] = riot.WrapHTTPError(503, riot.EndpointTimeline)
	}
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	_, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)

	// Recover all but one
	for _, m := range history() {
		delete(api.timelineErr, m.id)
	}
	api.timelineErr["NA1_1"] = riot.WrapHTTPError(404, riot.EndpointTimeline)

	var calls [][2]int
	res, err := e.BackfillTimelines(ctx, func(p Progress) {
		calls = append(calls, [2]int{p.Done, p.Total})
	})
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Updated: 4, Failed: 1, Total: 5}, res)
	assert.Equal(t, [][2]int{{1, 5}, {2, 5}, {3, 5}, {4, 5}, {5, 5}}, calls)

	rec, err := st.GetMatch(ctx, "NA1_2")
	require.NoError(t, err)
	assert.True(t, rec.HasTimeline())
	require.NotNil(t, rec.Derived.CSDiff15)
	assert.Equal(t, 10, *rec.Derived.CSDiff15)

	// Only the still-missing timeline is attempted again
	before := api.timelineCalls["NA1_2"]
	res, err = e.BackfillTimelines(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Failed: 1, Total: 1}, res)
	assert.Equal(t, before, api.timelineCalls["NA1_2"])
}

func TestBackfillTimelines_StopsOnRejectedKey(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	for _, m := range history() {
		api.timelineErr[m.id] = riot.WrapHTTPError(503, riot.EndpointTimeline)
	}
	_, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)

	for _, m := range history() {
		api.timelineErr[m.id] = riot.WrapHTTPError(403, riot.EndpointTimeline)
	}
	res, err := e.BackfillTimelines(ctx, nil)
	require.Error(t, err)
	assert.True(t, riot.IsAPIKeyError(err))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 5, res.Total)
}

func TestBackfillAdvancedStats(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	_, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)

	// Simulate rows written before derived stats existed
	for _, id := range []string{"NA1_1", "NA1_2"} {
		require.NoError(t, st.UpdateDerived(ctx, id, stats.Derived{}))
	}
	calls := api.totalDetailCalls()

	var last Progress
	res, err := e.BackfillAdvancedStats(ctx, func(p Progress) { last = p })
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{Updated: 2, Total: 2}, res)
	assert.Equal(t, 2, last.Done)
	assert.Equal(t, calls, api.totalDetailCalls())

	rec, err := st.GetMatch(ctx, "NA1_2")
	require.NoError(t, err)
	require.NotNil(t, rec.Derived.FirstBlood)
	require.NotNil(t, rec.Derived.CSDiff15)

	res, err = e.BackfillAdvancedStats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &BackfillResult{}, res)
}

func TestBackfillAdvancedStats_UnresolvableSubjectFails(t *testing.T) {
	api := newFakeAPI(history()...)
	st := setupStore(t)
	e := NewEngine(api, st, testConfig())
	ctx := context.Background()

	_, err := e.Sync(ctx, subjectPUUID, nil)
	require.NoError(t, err)

	// A subject that is not a participant in the stored detail
	_, err = st.DB().ExecContext(ctx,
		`UPDATE matches SET puuid = 'someone-else', first_blood = NULL WHERE match_id = 'NA1_3'`)
	require.NoError(t, err)

	for range 2 {
		res, err := e.BackfillAdvancedStats(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, &BackfillResult{Failed: 1, Total: 1}, res)
	}

	rec, err := st.GetMatch(ctx, "NA1_3")
	require.NoError(t, err)
	assert.Nil(t, rec.Derived.FirstBlood)
}
