package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/store"
)

// OnAccountsChanged purges raw contacts and groups whose owning account
// no longer exists. Local rows (no account at all) are never purged this
// way. Emptied contacts are destroyed and survivors re-elected.
func (e *Engine) OnAccountsChanged(ctx context.Context, current []store.Account) error {
	return e.inTx(ctx, "on_accounts_changed", func(tx store.Tx) error {
		known := func(a *store.Account) bool {
			if a == nil {
				return true
			}
			for _, c := range current {
				if c.Equal(*a) {
					return true
				}
			}
			return false
		}

		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if known(g.Account) {
				continue
			}
			if _, err := e.deleteMembershipRows(ctx, tx, g.ID); err != nil {
				return err
			}
			if err := tx.DeleteGroup(ctx, g.ID); err != nil {
				return err
			}
		}

		raws, err := tx.ListRawContacts(ctx)
		if err != nil {
			return err
		}
		purged := 0
		for _, rc := range raws {
			if known(rc.Account) {
				continue
			}
			if err := e.purgeRawContact(ctx, tx, rc); err != nil {
				return err
			}
			purged++
		}
		if purged > 0 {
			e.logger.Info("purged raw contacts for removed accounts",
				zap.Int("purged", purged))
		}
		return nil
	})
}

// PurgeDeletedRawContacts hard-deletes rows previously soft-deleted, on
// behalf of the owning account's sync adapter.
func (e *Engine) PurgeDeletedRawContacts(ctx context.Context, account *store.Account) error {
	return e.inTx(ctx, "purge_deleted_raw_contacts", func(tx store.Tx) error {
		raws, err := tx.ListRawContacts(ctx)
		if err != nil {
			return err
		}
		for _, rc := range raws {
			if !rc.Deleted || !sameAccount(rc.Account, account) {
				continue
			}
			if err := e.purgeRawContact(ctx, tx, rc); err != nil {
				return err
			}
		}
		return nil
	})
}
