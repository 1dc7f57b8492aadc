package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/contactd/internal/store"
)

func begin(t *testing.T, s *Store) store.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := begin(t, s)
	id, err := tx.InsertRawContact(ctx, &store.RawContact{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx = begin(t, s)
	defer tx.Rollback(ctx)
	_, err = tx.GetRawContact(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitPublishesWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := begin(t, s)
	id, err := tx.InsertRawContact(ctx, &store.RawContact{SourceID: "abc"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx = begin(t, s)
	defer tx.Rollback(ctx)
	rc, err := tx.GetRawContact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "abc", rc.SourceID)
}

func TestFailedMutationLeavesNothingBehind(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := store.RunInTx(ctx, s, func(tx store.Tx) error {
		if _, err := tx.InsertContact(ctx, &store.Contact{}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	tx := begin(t, s)
	defer tx.Rollback(ctx)
	_, err = tx.GetContact(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadsAreIsolatedCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	var id int64
	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		var err error
		id, err = tx.InsertRawContact(ctx, &store.RawContact{SourceID: "original"})
		return err
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return err
		}
		// Mutating the returned copy must not leak into the tables.
		rc.SourceID = "mutated"
		return nil
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return err
		}
		assert.Equal(t, "original", rc.SourceID)
		return nil
	}))
}

func TestDeleteRawContactCascades(t *testing.T) {
	s := New()
	ctx := context.Background()

	var rawID, rowID, otherID int64
	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		var err error
		if rawID, err = tx.InsertRawContact(ctx, &store.RawContact{}); err != nil {
			return err
		}
		if otherID, err = tx.InsertRawContact(ctx, &store.RawContact{}); err != nil {
			return err
		}
		if rowID, err = tx.InsertDataRow(ctx, &store.DataRow{
			RawContactID: rawID,
			Kind:         store.KindIm,
			Im:           &store.Im{Protocol: "jabber", Handle: "jd@example.com"},
		}); err != nil {
			return err
		}
		if _, err = tx.UpsertPresence(ctx, &store.PresenceRow{
			DataRowID:    rowID,
			RawContactID: rawID,
			Handle:       "jd@example.com",
			State:        store.PresenceAvailable,
		}); err != nil {
			return err
		}
		if err = tx.UpsertUsageStat(ctx, &store.DataUsageStat{
			DataRowID: rowID,
			Type:      store.UsageCall,
			Recent:    1,
			LastUsed:  time.Now(),
		}); err != nil {
			return err
		}
		if _, err = tx.InsertStreamItem(ctx, &store.StreamItem{
			RawContactID: rawID,
			Text:         "status",
			Timestamp:    time.Now(),
		}); err != nil {
			return err
		}
		return tx.UpsertAggregationException(ctx, &store.AggregationException{
			Type:          store.KeepSeparate,
			RawContactID1: rawID,
			RawContactID2: otherID,
		})
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		return tx.DeleteRawContact(ctx, rawID)
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		_, err := tx.GetDataRow(ctx, rowID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		rows, err := tx.PresenceByRawContact(ctx, rawID)
		require.NoError(t, err)
		assert.Empty(t, rows)

		stats, err := tx.UsageStatsByDataRow(ctx, rowID)
		require.NoError(t, err)
		assert.Empty(t, stats)

		items, err := tx.StreamItemsByRawContact(ctx, rawID)
		require.NoError(t, err)
		assert.Empty(t, items)

		excs, err := tx.AggregationExceptionsFor(ctx, otherID)
		require.NoError(t, err)
		assert.Empty(t, excs)
		return nil
	}))
}

func TestDeleteDataRowDropsLookupEntries(t *testing.T) {
	s := New()
	ctx := context.Background()

	var rawID, rowID int64
	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		var err error
		if rawID, err = tx.InsertRawContact(ctx, &store.RawContact{}); err != nil {
			return err
		}
		if rowID, err = tx.InsertDataRow(ctx, &store.DataRow{
			RawContactID: rawID,
			Kind:         store.KindPhone,
			Phone:        &store.Phone{Number: "555-0100"},
		}); err != nil {
			return err
		}
		return tx.ReplacePhoneLookup(ctx, rowID, []store.PhoneLookupEntry{{
			DataRowID:    rowID,
			RawContactID: rawID,
			Key:          "5550100",
		}})
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		return tx.DeleteDataRow(ctx, rowID)
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		entries, err := tx.PhoneLookup(ctx, "5550100")
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	}))
}

func TestAggregationExceptionPairIsCanonical(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		if err := tx.UpsertAggregationException(ctx, &store.AggregationException{
			Type:          store.KeepSeparate,
			RawContactID1: 7,
			RawContactID2: 3,
		}); err != nil {
			return err
		}
		// Same pair in the other order overwrites, not duplicates.
		return tx.UpsertAggregationException(ctx, &store.AggregationException{
			Type:          store.KeepTogether,
			RawContactID1: 3,
			RawContactID2: 7,
		})
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		excs, err := tx.AggregationExceptionsFor(ctx, 3)
		require.NoError(t, err)
		require.Len(t, excs, 1)
		assert.Equal(t, store.KeepTogether, excs[0].Type)
		return nil
	}))
}

func TestUpsertUsageStatKeyedByType(t *testing.T) {
	s := New()
	ctx := context.Background()

	var rawID, rowID int64
	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		var err error
		if rawID, err = tx.InsertRawContact(ctx, &store.RawContact{}); err != nil {
			return err
		}
		if rowID, err = tx.InsertDataRow(ctx, &store.DataRow{
			RawContactID: rawID,
			Kind:         store.KindPhone,
			Phone:        &store.Phone{Number: "555-0100"},
		}); err != nil {
			return err
		}
		if err := tx.UpsertUsageStat(ctx, &store.DataUsageStat{DataRowID: rowID, Type: store.UsageCall, Recent: 1}); err != nil {
			return err
		}
		if err := tx.UpsertUsageStat(ctx, &store.DataUsageStat{DataRowID: rowID, Type: store.UsageShortText, Recent: 2}); err != nil {
			return err
		}
		return tx.UpsertUsageStat(ctx, &store.DataUsageStat{DataRowID: rowID, Type: store.UsageCall, Recent: 5})
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		stats, err := tx.UsageStatsByDataRow(ctx, rowID)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		for _, stat := range stats {
			if stat.Type == store.UsageCall {
				assert.Equal(t, int64(5), stat.Recent)
			}
		}
		return nil
	}))
}

func TestPhotoRecordLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		if err := tx.InsertPhotoRecord(ctx, &store.PhotoRecord{
			FileID:    "f1",
			Thumbnail: []byte{1},
			Display:   []byte{2},
		}); err != nil {
			return err
		}
		return tx.InsertPhotoRecord(ctx, &store.PhotoRecord{FileID: "f2"})
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		ids, err := tx.ListPhotoFileIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"f1", "f2"}, ids)

		rec, err := tx.GetPhotoRecord(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, rec.Thumbnail)
		return tx.DeletePhotoRecord(ctx, "f2")
	}))

	require.NoError(t, store.RunInTx(ctx, s, func(tx store.Tx) error {
		_, err := tx.GetPhotoRecord(ctx, "f2")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}
