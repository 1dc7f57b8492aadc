// Package engine implements the contact-identity-resolution core: the
// aggregation state machine, attribute election, lookup-index
// maintenance, presence folding, usage ranking, and group/star
// synchronization. Every exported mutation runs as one store transaction
// that includes all of its cascading recomputation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/metrics"
	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/store"
)

// ErrValidation marks rejected writes; the transaction is rolled back and
// nothing is partially committed.
var ErrValidation = errors.New("validation failed")

// WriteOptions distinguishes the privileged sync-adapter path from
// ordinary callers. Privileged writes bypass read-only protection and do
// not mark rows dirty.
type WriteOptions struct {
	CallerIsSyncAdapter bool
}

// Engine is the aggregation core. It is safe for concurrent use; the
// store serializes mutations.
type Engine struct {
	store  store.Store
	phones *normalize.PhoneNormalizer
	logger *zap.Logger
}

// New wires an engine over a store.
func New(s store.Store, phones *normalize.PhoneNormalizer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: s, phones: phones, logger: logger}
}

func (e *Engine) inTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	err := store.RunInTx(ctx, e.store, fn)
	metrics.ObserveMutation(op, err)
	return err
}

// touchRawContact records a committed mutation of the raw contact or its
// data rows: the version counter is the only concurrency-control signal
// exposed to callers.
func touchRawContact(rc *store.RawContact, opts WriteOptions) {
	rc.Version++
	if !opts.CallerIsSyncAdapter {
		rc.Dirty = true
	}
}

// UpsertRawContact inserts a raw contact (ID zero) or updates an existing
// one. Inserts run auto-add group placement and aggregation; updates
// re-run aggregation when the aggregation mode left suspension and
// re-elect contact attributes otherwise. Unprivileged writes to read-only
// raw contacts are silent no-ops.
func (e *Engine) UpsertRawContact(ctx context.Context, rc *store.RawContact, opts WriteOptions) (*store.RawContact, error) {
	var out *store.RawContact
	err := e.inTx(ctx, "upsert_raw_contact", func(tx store.Tx) error {
		if rc.ID == 0 {
			return e.insertRawContact(ctx, tx, rc, opts, &out)
		}
		return e.updateRawContact(ctx, tx, rc, opts, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) insertRawContact(ctx context.Context, tx store.Tx, rc *store.RawContact, opts WriteOptions, out **store.RawContact) error {
	rc.Version = 1
	rc.Dirty = !opts.CallerIsSyncAdapter
	rc.ContactID = 0
	if rc.Starred {
		rc.StarredDirectly = true
	}
	if _, err := tx.InsertRawContact(ctx, rc); err != nil {
		return err
	}
	if err := e.autoAddToGroups(ctx, tx, rc); err != nil {
		return err
	}
	if err := e.aggregateRawContact(ctx, tx, rc); err != nil {
		return err
	}
	*out = rc
	return nil
}

func (e *Engine) updateRawContact(ctx context.Context, tx store.Tx, rc *store.RawContact, opts WriteOptions, out **store.RawContact) error {
	current, err := tx.GetRawContact(ctx, rc.ID)
	if err != nil {
		return err
	}
	if current.ReadOnly && !opts.CallerIsSyncAdapter {
		// Silently ignored: no error, no effect.
		*out = current
		return nil
	}

	wasSuspended := current.AggregationMode == store.AggregationSuspended
	if rc.Starred != current.Starred {
		rc.StarredDirectly = rc.Starred
	} else {
		rc.StarredDirectly = current.StarredDirectly
	}
	if !rc.StarredDirectly {
		// A favorites membership keeps the star regardless of what the
		// caller wrote.
		inFavorites, err := e.hasFavoritesMembership(ctx, tx, rc.ID)
		if err != nil {
			return err
		}
		rc.Starred = inFavorites
	}
	rc.Version = current.Version
	rc.ContactID = current.ContactID
	touchRawContact(rc, opts)
	if err := tx.UpdateRawContact(ctx, rc); err != nil {
		return err
	}

	if wasSuspended && rc.AggregationMode != store.AggregationSuspended {
		if err := e.aggregateRawContact(ctx, tx, rc); err != nil {
			return err
		}
	} else if rc.ContactID != 0 {
		if err := e.recomputeContactAttrs(ctx, tx, rc.ContactID); err != nil {
			return err
		}
	} else if rc.AggregationMode != store.AggregationSuspended {
		if err := e.aggregateRawContact(ctx, tx, rc); err != nil {
			return err
		}
	}
	*out = rc
	return nil
}

// UpsertDataRow inserts or updates a typed attribute row, enforcing the
// primary/super-primary invariants, refreshing the lookup indices, and
// re-running aggregation when a match key changed. Rows of unknown kind,
// kind changes on existing rows, and cross-account group memberships are
// rejected.
func (e *Engine) UpsertDataRow(ctx context.Context, d *store.DataRow, opts WriteOptions) (*store.DataRow, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var out *store.DataRow
	err := e.inTx(ctx, "upsert_data_row", func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, d.RawContactID)
		if err != nil {
			return err
		}
		if rc.ReadOnly && !opts.CallerIsSyncAdapter {
			out = d
			return nil
		}

		if d.Kind == store.KindGroupMembership {
			if err := e.validateMembership(ctx, tx, rc, d.GroupMembership.GroupID); err != nil {
				return err
			}
		}

		if d.ID == 0 {
			if _, err := tx.InsertDataRow(ctx, d); err != nil {
				return err
			}
		} else {
			current, err := tx.GetDataRow(ctx, d.ID)
			if err != nil {
				return err
			}
			if current.IsReadOnly && !opts.CallerIsSyncAdapter {
				out = current
				return nil
			}
			if current.Kind != d.Kind {
				return fmt.Errorf("%w: cannot change the kind of data row %d", ErrValidation, d.ID)
			}
			if err := tx.UpdateDataRow(ctx, d); err != nil {
				return err
			}
		}

		if err := e.applyElectionFlags(ctx, tx, d); err != nil {
			return err
		}
		if err := e.refreshLookupsForRow(ctx, tx, d); err != nil {
			return err
		}

		touchRawContact(rc, opts)
		if err := tx.UpdateRawContact(ctx, rc); err != nil {
			return err
		}

		if d.Kind == store.KindGroupMembership {
			if err := e.onMembershipChanged(ctx, tx, rc); err != nil {
				return err
			}
		}

		if affectsMatchKeys(d.Kind) && rc.AggregationMode != store.AggregationSuspended {
			if err := e.refreshNameLookup(ctx, tx, rc.ID); err != nil {
				return err
			}
			return e.aggregateRawContact(ctx, tx, rc)
		}
		if rc.ContactID != 0 {
			return e.recomputeContactAttrs(ctx, tx, rc.ContactID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = d
	}
	return out, nil
}

// DeleteDataRow removes an attribute row along with its lookup entries,
// presence rows, and usage stats, then re-runs aggregation or election as
// the removed kind requires.
func (e *Engine) DeleteDataRow(ctx context.Context, id int64, opts WriteOptions) error {
	return e.inTx(ctx, "delete_data_row", func(tx store.Tx) error {
		d, err := tx.GetDataRow(ctx, id)
		if err != nil {
			return err
		}
		rc, err := tx.GetRawContact(ctx, d.RawContactID)
		if err != nil {
			return err
		}
		if (rc.ReadOnly || d.IsReadOnly) && !opts.CallerIsSyncAdapter {
			return nil
		}
		if err := tx.DeleteDataRow(ctx, id); err != nil {
			return err
		}
		touchRawContact(rc, opts)
		if err := tx.UpdateRawContact(ctx, rc); err != nil {
			return err
		}
		if d.Kind == store.KindGroupMembership {
			if err := e.onMembershipChanged(ctx, tx, rc); err != nil {
				return err
			}
		}
		if affectsMatchKeys(d.Kind) && rc.AggregationMode != store.AggregationSuspended {
			if err := e.refreshNameLookup(ctx, tx, rc.ID); err != nil {
				return err
			}
			return e.aggregateRawContact(ctx, tx, rc)
		}
		if rc.ContactID != 0 {
			return e.recomputeContactAttrs(ctx, tx, rc.ContactID)
		}
		return nil
	})
}

// DeleteRawContact soft-deletes for ordinary callers (the row stays until
// the owning sync adapter purges it) and hard-deletes for the privileged
// path.
func (e *Engine) DeleteRawContact(ctx context.Context, id int64, opts WriteOptions) error {
	return e.inTx(ctx, "delete_raw_contact", func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return err
		}
		if opts.CallerIsSyncAdapter {
			return e.purgeRawContact(ctx, tx, rc)
		}
		rc.Deleted = true
		touchRawContact(rc, opts)
		oldContact := rc.ContactID
		rc.ContactID = 0
		if err := tx.UpdateRawContact(ctx, rc); err != nil {
			return err
		}
		if err := e.clearLookupsForRawContact(ctx, tx, rc.ID); err != nil {
			return err
		}
		return e.cleanupContact(ctx, tx, oldContact)
	})
}

// purgeRawContact hard-deletes the row and its dependents; the store
// cascades data rows, lookups, presence, usage, and stream items.
func (e *Engine) purgeRawContact(ctx context.Context, tx store.Tx, rc *store.RawContact) error {
	oldContact := rc.ContactID
	if err := tx.DeleteRawContact(ctx, rc.ID); err != nil {
		return err
	}
	return e.cleanupContact(ctx, tx, oldContact)
}

// cleanupContact deletes a contact once its last member is gone, and
// re-elects attributes otherwise. A zero id is a no-op.
func (e *Engine) cleanupContact(ctx context.Context, tx store.Tx, contactID int64) error {
	if contactID == 0 {
		return nil
	}
	members, err := tx.RawContactsByContact(ctx, contactID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		if err := tx.DeleteContact(ctx, contactID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}
	return e.recomputeContactAttrs(ctx, tx, contactID)
}

// SetAggregationException records a keep-together or keep-separate
// directive for a raw-contact pair (last write wins) and re-runs
// aggregation. A zero type clears the directive.
func (e *Engine) SetAggregationException(ctx context.Context, typ store.ExceptionType, rawA, rawB int64) error {
	if rawA == rawB {
		return fmt.Errorf("%w: aggregation exception requires two distinct raw contacts", ErrValidation)
	}
	return e.inTx(ctx, "set_aggregation_exception", func(tx store.Tx) error {
		a, err := tx.GetRawContact(ctx, rawA)
		if err != nil {
			return err
		}
		if _, err := tx.GetRawContact(ctx, rawB); err != nil {
			return err
		}
		if typ == 0 {
			if err := tx.DeleteAggregationException(ctx, rawA, rawB); err != nil {
				return err
			}
		} else {
			exc := &store.AggregationException{Type: typ, RawContactID1: rawA, RawContactID2: rawB}
			if err := tx.UpsertAggregationException(ctx, exc); err != nil {
				return err
			}
		}
		if err := e.aggregateRawContact(ctx, tx, a); err != nil {
			return err
		}
		// The pair partner may need to split or re-join as well.
		b, err := tx.GetRawContact(ctx, rawB)
		if err != nil {
			return err
		}
		return e.aggregateRawContact(ctx, tx, b)
	})
}

// RecomputeContact re-elects all derived attributes of a contact. It is
// idempotent, and a stale id (e.g. observed just before a merge) is a
// no-op rather than an error.
func (e *Engine) RecomputeContact(ctx context.Context, contactID int64) error {
	return e.inTx(ctx, "recompute_contact", func(tx store.Tx) error {
		if _, err := tx.GetContact(ctx, contactID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		return e.recomputeContactAttrs(ctx, tx, contactID)
	})
}

// GetContact loads the aggregated view. Stale ids fail closed with
// store.ErrNotFound.
func (e *Engine) GetContact(ctx context.Context, contactID int64) (*store.Contact, error) {
	var out *store.Contact
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		c, err := tx.GetContact(ctx, contactID)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRawContact loads a raw contact row.
func (e *Engine) GetRawContact(ctx context.Context, id int64) (*store.RawContact, error) {
	var out *store.RawContact
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return err
		}
		out = rc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDataRow loads a single data row.
func (e *Engine) GetDataRow(ctx context.Context, id int64) (*store.DataRow, error) {
	var out *store.DataRow
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		d, err := tx.GetDataRow(ctx, id)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetContactSendToVoicemail fans the flag out to every member raw
// contact, then re-elects.
func (e *Engine) SetContactSendToVoicemail(ctx context.Context, contactID int64, send bool, opts WriteOptions) error {
	return e.inTx(ctx, "set_contact_send_to_voicemail", func(tx store.Tx) error {
		members, err := tx.RawContactsByContact(ctx, contactID)
		if err != nil {
			return err
		}
		for _, rc := range members {
			if rc.ReadOnly && !opts.CallerIsSyncAdapter {
				continue
			}
			rc.SendToVoicemail = send
			touchRawContact(rc, opts)
			if err := tx.UpdateRawContact(ctx, rc); err != nil {
				return err
			}
		}
		return e.recomputeContactAttrs(ctx, tx, contactID)
	})
}

// SetContactRingtone fans the ringtone out to every member raw contact.
func (e *Engine) SetContactRingtone(ctx context.Context, contactID int64, ringtone string, opts WriteOptions) error {
	return e.inTx(ctx, "set_contact_ringtone", func(tx store.Tx) error {
		members, err := tx.RawContactsByContact(ctx, contactID)
		if err != nil {
			return err
		}
		for _, rc := range members {
			if rc.ReadOnly && !opts.CallerIsSyncAdapter {
				continue
			}
			rc.CustomRingtone = ringtone
			touchRawContact(rc, opts)
			if err := tx.UpdateRawContact(ctx, rc); err != nil {
				return err
			}
		}
		return e.recomputeContactAttrs(ctx, tx, contactID)
	})
}

func affectsMatchKeys(kind store.DataKind) bool {
	switch kind {
	case store.KindPhone, store.KindEmail, store.KindStructuredName, store.KindNickname, store.KindOrganization:
		return true
	}
	return false
}

// isEmailQuery decides which index a lookup query probes.
func isEmailQuery(q string) bool {
	return strings.ContainsRune(q, '@')
}
