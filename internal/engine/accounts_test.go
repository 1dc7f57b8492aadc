package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/contactd/internal/store"
)

func TestAccountsChangedPurgesRemovedAccount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gone := &store.Account{Name: "old@example.com", Type: "com.example"}
	kept := &store.Account{Name: "new@example.com", Type: "com.example"}

	purged := insertRaw(t, e, gone)
	survivor := insertRaw(t, e, kept)
	local := insertRaw(t, e, nil)

	require.NoError(t, e.OnAccountsChanged(ctx, []store.Account{*kept}))

	_, err := e.GetRawContact(ctx, purged.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.GetRawContact(ctx, survivor.ID)
	assert.NoError(t, err)
	_, err = e.GetRawContact(ctx, local.ID)
	assert.NoError(t, err)
}

func TestAccountsChangedDropsOrphanedGroups(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gone := &store.Account{Name: "old@example.com", Type: "com.example"}
	insertGroup(t, e, &store.Group{Title: "Orphaned", Account: gone})

	require.NoError(t, e.OnAccountsChanged(ctx, nil))

	groups, err := e.ListGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAccountsChangedDestroysEmptiedContact(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gone := &store.Account{Name: "old@example.com", Type: "com.example"}
	rc := insertRaw(t, e, gone)
	contactID := rc.ContactID

	require.NoError(t, e.OnAccountsChanged(ctx, nil))

	_, err := e.GetContact(ctx, contactID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccountsChangedReelectsSurvivors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	gone := &store.Account{Name: "old@example.com", Type: "com.example"}
	a := insertRaw(t, e, gone)
	b := insertRaw(t, e, nil)
	addName(t, e, a.ID, "Synced", "Copy")
	addName(t, e, b.ID, "Synced", "Copy")
	require.Equal(t, getRaw(t, e, a.ID).ContactID, getRaw(t, e, b.ID).ContactID)

	require.NoError(t, e.OnAccountsChanged(ctx, nil))

	got := getRaw(t, e, b.ID)
	require.NotZero(t, got.ContactID)
	c := getContact(t, e, got.ContactID)
	assert.Equal(t, b.ID, c.NameRawContactID)
	assert.Equal(t, "Synced Copy", c.DisplayNamePrimary)
}

func TestPurgeSkipsOtherAccounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	mine := &store.Account{Name: "a@example.com", Type: "com.example"}
	other := &store.Account{Name: "b@example.com", Type: "com.example"}

	rcMine := insertRaw(t, e, mine)
	rcOther := insertRaw(t, e, other)
	require.NoError(t, e.DeleteRawContact(ctx, rcMine.ID, WriteOptions{}))
	require.NoError(t, e.DeleteRawContact(ctx, rcOther.ID, WriteOptions{}))

	require.NoError(t, e.PurgeDeletedRawContacts(ctx, mine))

	_, err := e.GetRawContact(ctx, rcMine.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got := getRaw(t, e, rcOther.ID)
	assert.True(t, got.Deleted)
}
