package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/contactd/internal/store"
)

func TestAggregateByPhone(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "1-800-466-4411")
	addPhone(t, e, b.ID, "+1 800 466 4411")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.Equal(t, a.ContactID, b.ContactID)
}

func TestMinMatchAloneDoesNotAggregate(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	// Same trailing digits, different country prefixes: a lookup hit but
	// not an aggregation key.
	addPhone(t, e, a.ID, "+16508610000")
	addPhone(t, e, b.ID, "+447978610000")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
}

func TestAggregateByEmailCaseInsensitive(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addEmail(t, e, a.ID, "John.Doe@Example.com")
	addEmail(t, e, b.ID, "john.doe@example.com")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.Equal(t, a.ContactID, b.ContactID)
}

func TestAggregateByFullName(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addName(t, e, a.ID, "John", "Doe")
	addName(t, e, b.ID, "John", "Doe")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.Equal(t, a.ContactID, b.ContactID)
}

func TestPhoneDisplayNameDoesNotAggregateByName(t *testing.T) {
	e := newTestEngine(t)

	// Both raw contacts display as the same phone-number-derived name,
	// but with different actual numbers they must stay apart.
	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "555 0100")
	addPhone(t, e, b.ID, "555-0199")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
}

func TestSurvivorIsLowestContactID(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	lowest := a.ContactID
	if b.ContactID < lowest {
		lowest = b.ContactID
	}

	addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")

	a = getRaw(t, e, a.ID)
	assert.Equal(t, lowest, a.ContactID)
}

func TestRepeatedMatchesStayInOneContact(t *testing.T) {
	e := newTestEngine(t)

	var raws []*store.RawContact
	for i := 0; i < 3; i++ {
		raws = append(raws, insertRaw(t, e, nil))
	}
	for _, rc := range raws {
		addPhone(t, e, rc.ID, "555-0100")
	}

	first := getRaw(t, e, raws[0].ID).ContactID
	for _, rc := range raws[1:] {
		assert.Equal(t, first, getRaw(t, e, rc.ID).ContactID)
	}
}

func TestKeepSeparateBlocksMatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	require.NoError(t, e.SetAggregationException(ctx, store.KeepSeparate, a.ID, b.ID))

	addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
}

func TestKeepSeparateDominatesTransitively(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	c := insertRaw(t, e, nil)
	require.NoError(t, e.SetAggregationException(ctx, store.KeepSeparate, a.ID, b.ID))

	// c matches both a and b; it may join only one of them.
	addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")
	addPhone(t, e, c.ID, "555-0100")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	c = getRaw(t, e, c.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
	assert.True(t, c.ContactID == a.ContactID || c.ContactID == b.ContactID)
}

func TestKeepTogetherMergesUnmatched(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, a.ID, b.ID))

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.Equal(t, a.ContactID, b.ContactID)
}

func TestKeepTogetherDoesNotResurrectDeleted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, a.ID, b.ID))
	require.NoError(t, e.DeleteRawContact(ctx, a.ID, WriteOptions{}))

	// A later match-key write on the partner re-runs aggregation; the
	// tombstone must stay out of it.
	addPhone(t, e, b.ID, "555-0100")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.True(t, a.Deleted)
	assert.Zero(t, a.ContactID)
	assert.NotZero(t, b.ContactID)
}

func TestVoicemailRingtonePreservedAfterJoinAndSplit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a, err := e.UpsertRawContact(ctx, &store.RawContact{SendToVoicemail: true, CustomRingtone: "beep"}, WriteOptions{})
	require.NoError(t, err)
	b, err := e.UpsertRawContact(ctx, &store.RawContact{CustomRingtone: "chime"}, WriteOptions{})
	require.NoError(t, err)

	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, a.ID, b.ID))
	joined := getContact(t, e, getRaw(t, e, a.ID).ContactID)
	assert.False(t, joined.SendToVoicemail)
	assert.Equal(t, "beep", joined.CustomRingtone)

	require.NoError(t, e.SetAggregationException(ctx, 0, a.ID, b.ID))
	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	require.NotEqual(t, a.ContactID, b.ContactID)

	ca := getContact(t, e, a.ContactID)
	cb := getContact(t, e, b.ContactID)
	assert.True(t, ca.SendToVoicemail)
	assert.Equal(t, "beep", ca.CustomRingtone)
	assert.False(t, cb.SendToVoicemail)
	assert.Equal(t, "chime", cb.CustomRingtone)
}

func TestClearingKeepTogetherSplits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, a.ID, b.ID))
	require.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.SetAggregationException(ctx, 0, a.ID, b.ID))

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
}

func TestKeepSeparateSplitsExistingContact(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")
	require.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.SetAggregationException(ctx, store.KeepSeparate, a.ID, b.ID))

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
	require.NotZero(t, a.ContactID)
	require.NotZero(t, b.ContactID)
}

func TestLastExceptionWriteWins(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")

	require.NoError(t, e.SetAggregationException(ctx, store.KeepSeparate, a.ID, b.ID))
	require.NotEqual(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, b.ID, a.ID))
	assert.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)
}

func TestExceptionRequiresDistinctPair(t *testing.T) {
	e := newTestEngine(t)
	err := e.SetAggregationException(context.Background(), store.KeepTogether, 7, 7)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSuspendedRawContactDoesNotAggregate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "555-0100")

	b, err := e.UpsertRawContact(ctx, &store.RawContact{AggregationMode: store.AggregationSuspended}, WriteOptions{})
	require.NoError(t, err)
	addPhone(t, e, b.ID, "555-0100")

	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, getRaw(t, e, a.ID).ContactID, b.ContactID)

	// Leaving suspension triggers the deferred pass.
	update := *b
	update.AggregationMode = store.AggregationDefault
	_, err = e.UpsertRawContact(ctx, &update, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)
}

func TestDisabledRawContactOnlyJoinsByKeepTogether(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	addPhone(t, e, a.ID, "555-0100")

	b, err := e.UpsertRawContact(ctx, &store.RawContact{AggregationMode: store.AggregationDisabled}, WriteOptions{})
	require.NoError(t, err)
	addPhone(t, e, b.ID, "555-0100")

	require.NotEqual(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.SetAggregationException(ctx, store.KeepTogether, a.ID, b.ID))
	assert.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)
}

func TestRemovingMatchKeySplits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	rowA := addPhone(t, e, a.ID, "555-0100")
	addPhone(t, e, b.ID, "555-0100")
	require.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.DeleteDataRow(ctx, rowA.ID, WriteOptions{}))

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	assert.NotEqual(t, a.ContactID, b.ContactID)
	assert.NotZero(t, a.ContactID)
	assert.NotZero(t, b.ContactID)
}

func TestThreeWayMergeSharesOneContact(t *testing.T) {
	e := newTestEngine(t)

	a := insertRaw(t, e, nil)
	b := insertRaw(t, e, nil)
	c := insertRaw(t, e, nil)

	addName(t, e, a.ID, "John", "Doe")
	addName(t, e, b.ID, "John", "Doe")
	addEmail(t, e, b.ID, "jd@example.com")
	addEmail(t, e, c.ID, "jd@example.com")

	a = getRaw(t, e, a.ID)
	b = getRaw(t, e, b.ID)
	c = getRaw(t, e, c.ID)
	assert.Equal(t, a.ContactID, b.ContactID)
	assert.Equal(t, b.ContactID, c.ContactID)
}
