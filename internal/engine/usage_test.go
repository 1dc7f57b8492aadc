package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/contactd/internal/store"
)

func TestAgeUsageStatKeepsRecentWithinWindow(t *testing.T) {
	now := time.Now()
	stat := &store.DataUsageStat{Recent: 3, Medium: 1, LastUsed: now.Add(-24 * time.Hour)}
	ageUsageStat(stat, now)
	assert.Equal(t, int64(3), stat.Recent)
	assert.Equal(t, int64(1), stat.Medium)
}

func TestAgeUsageStatShiftsToMedium(t *testing.T) {
	now := time.Now()
	stat := &store.DataUsageStat{Recent: 3, Medium: 1, LastUsed: now.Add(-31 * 24 * time.Hour)}
	ageUsageStat(stat, now)
	assert.Zero(t, stat.Recent)
	assert.Equal(t, int64(4), stat.Medium)
}

func TestAgeUsageStatShiftsToOld(t *testing.T) {
	now := time.Now()
	stat := &store.DataUsageStat{Recent: 3, Medium: 2, Old: 1, LastUsed: now.Add(-181 * 24 * time.Hour)}
	ageUsageStat(stat, now)
	assert.Zero(t, stat.Recent)
	assert.Zero(t, stat.Medium)
	assert.Equal(t, int64(6), stat.Old)
}

func TestAgeUsageStatZeroLastUsedIsNoop(t *testing.T) {
	stat := &store.DataUsageStat{Recent: 2}
	ageUsageStat(stat, time.Now())
	assert.Equal(t, int64(2), stat.Recent)
}

func TestRankScoreWeightsBuckets(t *testing.T) {
	now := time.Now()
	recent := RankScore([]*store.DataUsageStat{{Recent: 1, LastUsed: now}}, now)
	medium := RankScore([]*store.DataUsageStat{{Medium: 1, LastUsed: now}}, now)
	old := RankScore([]*store.DataUsageStat{{Old: 1, LastUsed: now}}, now)

	assert.InDelta(t, 5.0, recent, 1e-9)
	assert.InDelta(t, 2.0, medium, 1e-9)
	assert.InDelta(t, 1.0, old, 1e-9)
}

func TestRankScoreDecaysWithAge(t *testing.T) {
	now := time.Now()
	fresh := RankScore([]*store.DataUsageStat{{Recent: 1, LastUsed: now}}, now)
	stale := RankScore([]*store.DataUsageStat{{Recent: 1, LastUsed: now.Add(-90 * 24 * time.Hour)}}, now)

	assert.Greater(t, fresh, stale)
	assert.Greater(t, stale, 0.0)
}

func TestRankScoreEmptyStatsIsZero(t *testing.T) {
	assert.Zero(t, RankScore(nil, time.Now()))
	assert.Zero(t, RankScore([]*store.DataUsageStat{{}}, time.Now()))
}

func TestApplyUsageFeedbackAccumulates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rc := insertRaw(t, e, nil)
	row := addPhone(t, e, rc.ID, "555-0100")

	now := time.Now()
	require.NoError(t, e.ApplyUsageFeedback(ctx, row.ID, store.UsageCall, now))
	require.NoError(t, e.ApplyUsageFeedback(ctx, row.ID, store.UsageCall, now.Add(time.Minute)))
	require.NoError(t, e.ApplyUsageFeedback(ctx, row.ID, store.UsageShortText, now.Add(time.Minute)))

	var stats []*store.DataUsageStat
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		var err error
		stats, err = tx.UsageStatsByDataRow(ctx, row.ID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	var calls int64
	for _, s := range stats {
		if s.Type == store.UsageCall {
			calls = s.Recent
		}
	}
	assert.Equal(t, int64(2), calls)
}

func TestApplyUsageFeedbackUnknownRow(t *testing.T) {
	e := newTestEngine(t)
	err := e.ApplyUsageFeedback(context.Background(), 999, store.UsageCall, time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLookupOrdersByUsageRank(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Two distinct contacts sharing the trailing digits of the query.
	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "+16508610000")
	rowB := addPhone(t, e, b.ID, "+447978610000")
	require.NotEqual(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.ApplyUsageFeedback(ctx, rowB.ID, store.UsageCall, time.Now()))

	refs, err := e.LookupByPhoneOrEmail(ctx, "6508610000", true)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, b.ID, refs[0].RawContactID)
	assert.Equal(t, a.ID, refs[1].RawContactID)
}

func TestLookupLocalNumberFromInternationalQuery(t *testing.T) {
	e := newTestEngine(t)

	rc := insertRaw(t, e, nil)
	addPhone(t, e, rc.ID, "861-0002")

	refs, err := e.LookupByPhoneOrEmail(context.Background(), "+1 650 861 0002", true)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, rc.ID, refs[0].RawContactID)
}

func TestLookupSuppressesDuplicateContacts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "650-861-0000")
	addPhone(t, e, b.ID, "650-861-0000")
	require.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	refs, err := e.LookupByPhoneOrEmail(ctx, "650-861-0000", true)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	refs, err = e.LookupByPhoneOrEmail(ctx, "650-861-0000", false)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestLookupByEmail(t *testing.T) {
	e := newTestEngine(t)

	rc := insertRaw(t, e, nil)
	row := addEmail(t, e, rc.ID, "John.Doe@Example.com")

	refs, err := e.LookupByPhoneOrEmail(context.Background(), "john.doe@example.com", true)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, rc.ID, refs[0].RawContactID)
	assert.Equal(t, row.ID, refs[0].DataRowID)
}

func TestLookupIncludesDisplayName(t *testing.T) {
	e := newTestEngine(t)

	rc := insertRaw(t, e, nil)
	addName(t, e, rc.ID, "John", "Doe")
	addPhone(t, e, rc.ID, "650-861-0000")

	refs, err := e.LookupByPhoneOrEmail(context.Background(), "6508610000", true)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "John Doe", refs[0].DisplayName)
}
