package engine

import (
	"context"
	"fmt"

	"github.com/jw6ventures/contactd/internal/store"
)

// validateMembership rejects memberships whose group lives under a
// different account than the raw contact.
func (e *Engine) validateMembership(ctx context.Context, tx store.Tx, rc *store.RawContact, groupID int64) error {
	g, err := tx.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("%w: group %d does not exist", ErrValidation, groupID)
	}
	if !sameAccount(g.Account, rc.Account) {
		return fmt.Errorf("%w: group %d belongs to a different account", ErrValidation, groupID)
	}
	return nil
}

func sameAccount(a, b *store.Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// onMembershipChanged re-establishes the star invariant for a raw
// contact after a group-membership row was inserted, updated, or
// removed: starred is true iff the raw contact belongs to at least one
// favorites group, or was starred by a direct write.
func (e *Engine) onMembershipChanged(ctx context.Context, tx store.Tx, rc *store.RawContact) error {
	inFavorites, err := e.hasFavoritesMembership(ctx, tx, rc.ID)
	if err != nil {
		return err
	}
	starred := inFavorites || rc.StarredDirectly
	if starred == rc.Starred {
		return nil
	}
	rc.Starred = starred
	return tx.UpdateRawContact(ctx, rc)
}

func (e *Engine) hasFavoritesMembership(ctx context.Context, tx store.Tx, rawContactID int64) (bool, error) {
	rows, err := tx.DataRowsByRawContact(ctx, rawContactID)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Kind != store.KindGroupMembership {
			continue
		}
		g, err := tx.GetGroup(ctx, row.GroupMembership.GroupID)
		if err != nil {
			continue
		}
		if g.Favorites {
			return true, nil
		}
	}
	return false, nil
}

// SetRawContactStarred records a direct star write. A direct star does
// not create group memberships, and it survives losing favorites-group
// backing later.
func (e *Engine) SetRawContactStarred(ctx context.Context, rawContactID int64, starred bool, opts WriteOptions) error {
	return e.inTx(ctx, "set_raw_contact_starred", func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, rawContactID)
		if err != nil {
			return err
		}
		if rc.ReadOnly && !opts.CallerIsSyncAdapter {
			return nil
		}
		rc.StarredDirectly = starred
		if starred {
			rc.Starred = true
		} else {
			inFavorites, err := e.hasFavoritesMembership(ctx, tx, rc.ID)
			if err != nil {
				return err
			}
			rc.Starred = inFavorites
		}
		touchRawContact(rc, opts)
		if err := tx.UpdateRawContact(ctx, rc); err != nil {
			return err
		}
		if rc.ContactID == 0 {
			return nil
		}
		return e.recomputeContactAttrs(ctx, tx, rc.ContactID)
	})
}

// SetContactStarred fans a contact-level star write out to every member
// raw contact.
func (e *Engine) SetContactStarred(ctx context.Context, contactID int64, starred bool, opts WriteOptions) error {
	return e.inTx(ctx, "set_contact_starred", func(tx store.Tx) error {
		members, err := tx.RawContactsByContact(ctx, contactID)
		if err != nil {
			return err
		}
		for _, rc := range members {
			if rc.ReadOnly && !opts.CallerIsSyncAdapter {
				continue
			}
			rc.StarredDirectly = starred
			if starred {
				rc.Starred = true
			} else {
				inFavorites, err := e.hasFavoritesMembership(ctx, tx, rc.ID)
				if err != nil {
					return err
				}
				rc.Starred = inFavorites
			}
			touchRawContact(rc, opts)
			if err := tx.UpdateRawContact(ctx, rc); err != nil {
				return err
			}
		}
		return e.recomputeContactAttrs(ctx, tx, contactID)
	})
}

// InsertGroup creates a group. An auto-add group starts collecting
// members from subsequent raw-contact inserts; it does not retroactively
// scan existing rows.
func (e *Engine) InsertGroup(ctx context.Context, g *store.Group) (*store.Group, error) {
	var out *store.Group
	err := e.inTx(ctx, "insert_group", func(tx store.Tx) error {
		if _, err := tx.InsertGroup(ctx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateGroup rewrites a group's attributes. Toggling the favorites flag
// re-establishes the star invariant for every member.
func (e *Engine) UpdateGroup(ctx context.Context, g *store.Group) error {
	return e.inTx(ctx, "update_group", func(tx store.Tx) error {
		current, err := tx.GetGroup(ctx, g.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return err
		}
		if current.Favorites == g.Favorites {
			return nil
		}
		return e.resyncGroupMembers(ctx, tx, g.ID)
	})
}

// DeleteGroup removes a group and all of its membership rows, then
// recomputes the starred flag of every affected raw contact.
func (e *Engine) DeleteGroup(ctx context.Context, groupID int64) error {
	return e.inTx(ctx, "delete_group", func(tx store.Tx) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		memberIDs, err := e.deleteMembershipRows(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, groupID); err != nil {
			return err
		}
		for _, rawID := range memberIDs {
			rc, err := tx.GetRawContact(ctx, rawID)
			if err != nil {
				continue
			}
			if err := e.onMembershipChanged(ctx, tx, rc); err != nil {
				return err
			}
			if rc.ContactID != 0 {
				if err := e.recomputeContactAttrs(ctx, tx, rc.ContactID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ListGroups returns all groups.
func (e *Engine) ListGroups(ctx context.Context) ([]*store.Group, error) {
	var out []*store.Group
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		out = groups
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) deleteMembershipRows(ctx context.Context, tx store.Tx, groupID int64) ([]int64, error) {
	rows, err := tx.DataRowsByKind(ctx, store.KindGroupMembership)
	if err != nil {
		return nil, err
	}
	var memberIDs []int64
	for _, row := range rows {
		if row.GroupMembership.GroupID != groupID {
			continue
		}
		if err := tx.DeleteDataRow(ctx, row.ID); err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, row.RawContactID)
	}
	return memberIDs, nil
}

// resyncGroupMembers re-runs the star invariant for every raw contact
// holding a membership in the group.
func (e *Engine) resyncGroupMembers(ctx context.Context, tx store.Tx, groupID int64) error {
	rows, err := tx.DataRowsByKind(ctx, store.KindGroupMembership)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.GroupMembership.GroupID != groupID {
			continue
		}
		rc, err := tx.GetRawContact(ctx, row.RawContactID)
		if err != nil {
			continue
		}
		if err := e.onMembershipChanged(ctx, tx, rc); err != nil {
			return err
		}
		if rc.ContactID != 0 {
			if err := e.recomputeContactAttrs(ctx, tx, rc.ContactID); err != nil {
				return err
			}
		}
	}
	return nil
}

// autoAddToGroups places a freshly inserted raw contact into every
// auto-add group of its account.
func (e *Engine) autoAddToGroups(ctx context.Context, tx store.Tx, rc *store.RawContact) error {
	groups, err := tx.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if !g.AutoAdd || !sameAccount(g.Account, rc.Account) {
			continue
		}
		row := &store.DataRow{
			RawContactID:    rc.ID,
			Kind:            store.KindGroupMembership,
			GroupMembership: &store.GroupMembership{GroupID: g.ID},
		}
		if _, err := tx.InsertDataRow(ctx, row); err != nil {
			return err
		}
		if g.Favorites {
			if err := e.onMembershipChanged(ctx, tx, rc); err != nil {
				return err
			}
		}
	}
	return nil
}
