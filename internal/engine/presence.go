package engine

import (
	"context"
	"fmt"

	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/store"
)

// UpdatePresence applies a presence event to every data row whose IM
// handle (or, failing that, email address) matches, refreshes the
// contact-level summary, and appends the escaped status text to the
// social stream. An update matching nothing is a no-op, not an error.
func (e *Engine) UpdatePresence(ctx context.Context, p *store.PresenceRow) error {
	if p.Handle == "" {
		return fmt.Errorf("%w: presence update requires a handle", ErrValidation)
	}
	return e.inTx(ctx, "update_presence", func(tx store.Tx) error {
		targets, err := e.matchPresenceRows(ctx, tx, p)
		if err != nil {
			return err
		}
		statusText := normalize.EscapeStatusText(p.StatusText)
		touched := map[int64]bool{}
		for _, row := range targets {
			presence := *p
			presence.ID = 0
			presence.DataRowID = row.ID
			presence.RawContactID = row.RawContactID
			presence.StatusText = statusText
			if _, err := tx.UpsertPresence(ctx, &presence); err != nil {
				return err
			}
			if statusText != "" {
				if _, err := tx.InsertStreamItem(ctx, &store.StreamItem{
					RawContactID: row.RawContactID,
					Text:         statusText,
					Timestamp:    p.StatusTimestamp,
				}); err != nil {
					return err
				}
			}
			rc, err := tx.GetRawContact(ctx, row.RawContactID)
			if err != nil {
				return err
			}
			if rc.ContactID != 0 {
				touched[rc.ContactID] = true
			}
		}
		for contactID := range touched {
			if err := e.recomputeContactAttrs(ctx, tx, contactID); err != nil {
				return err
			}
		}
		return nil
	})
}

// matchPresenceRows finds the data rows a presence event attributes to:
// IM rows with the same protocol and handle first, email rows with the
// matching address as the fallback.
func (e *Engine) matchPresenceRows(ctx context.Context, tx store.Tx, p *store.PresenceRow) ([]*store.DataRow, error) {
	var matched []*store.DataRow
	imRows, err := tx.DataRowsByKind(ctx, store.KindIm)
	if err != nil {
		return nil, err
	}
	for _, row := range imRows {
		if row.Im.Handle != p.Handle {
			continue
		}
		if row.Im.Protocol != p.Protocol {
			continue
		}
		if p.CustomProtocol != "" && row.Im.CustomProtocol != p.CustomProtocol {
			continue
		}
		matched = append(matched, row)
	}
	if len(matched) > 0 {
		return matched, nil
	}

	emailRows, err := tx.DataRowsByKind(ctx, store.KindEmail)
	if err != nil {
		return nil, err
	}
	handle := normalize.FoldText(p.Handle)
	for _, row := range emailRows {
		if normalize.FoldText(row.Email.Address) == handle {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// DeletePresence removes the presence row attached to a data row and
// recomputes the affected contact, which may drop to "no presence".
func (e *Engine) DeletePresence(ctx context.Context, dataRowID int64) error {
	return e.inTx(ctx, "delete_presence", func(tx store.Tx) error {
		p, err := tx.PresenceByDataRow(ctx, dataRowID)
		if err != nil {
			return err
		}
		if err := tx.DeletePresence(ctx, p.ID); err != nil {
			return err
		}
		rc, err := tx.GetRawContact(ctx, p.RawContactID)
		if err != nil {
			return err
		}
		if rc.ContactID == 0 {
			return nil
		}
		return e.recomputeContactAttrs(ctx, tx, rc.ContactID)
	})
}

// refreshContactPresence folds member presence rows into the contact
// summary: the numerically highest availability wins, ties broken by the
// latest status timestamp.
func (e *Engine) refreshContactPresence(ctx context.Context, tx store.Tx, contact *store.Contact, members []*store.RawContact) error {
	var best *store.PresenceRow
	for _, m := range members {
		rows, err := tx.PresenceByRawContact(ctx, m.ID)
		if err != nil {
			return err
		}
		for _, p := range rows {
			if best == nil ||
				p.State > best.State ||
				(p.State == best.State && p.StatusTimestamp.After(best.StatusTimestamp)) {
				best = p
			}
		}
	}
	if best == nil {
		contact.Presence = nil
		return nil
	}
	contact.Presence = &store.ContactPresence{
		State:           best.State,
		StatusText:      best.StatusText,
		StatusTimestamp: best.StatusTimestamp,
	}
	return nil
}
