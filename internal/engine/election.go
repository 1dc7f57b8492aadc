package engine

import (
	"context"

	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/store"
)

// applyElectionFlags enforces the primary/super-primary invariants after
// a data row write:
//   - is-primary clears is-primary (and is-super-primary) on every other
//     row of the same kind within the raw contact;
//   - is-super-primary implies is-primary on the written row and clears
//     is-super-primary on every other row of that kind across the whole
//     contact;
//   - a row that lost is-primary also loses is-super-primary.
func (e *Engine) applyElectionFlags(ctx context.Context, tx store.Tx, d *store.DataRow) error {
	if d.IsSuperPrimary && !d.IsPrimary {
		d.IsPrimary = true
		if err := tx.UpdateDataRow(ctx, d); err != nil {
			return err
		}
	}
	if !d.IsPrimary && d.IsSuperPrimary {
		d.IsSuperPrimary = false
		if err := tx.UpdateDataRow(ctx, d); err != nil {
			return err
		}
	}

	if d.IsPrimary {
		siblings, err := tx.DataRowsByRawContact(ctx, d.RawContactID)
		if err != nil {
			return err
		}
		for _, row := range siblings {
			if row.ID == d.ID || row.Kind != d.Kind {
				continue
			}
			if row.IsPrimary || row.IsSuperPrimary {
				row.IsPrimary = false
				row.IsSuperPrimary = false
				if err := tx.UpdateDataRow(ctx, row); err != nil {
					return err
				}
			}
		}
	}

	if d.IsSuperPrimary {
		rc, err := tx.GetRawContact(ctx, d.RawContactID)
		if err != nil {
			return err
		}
		if rc.ContactID != 0 {
			members, err := tx.RawContactsByContact(ctx, rc.ContactID)
			if err != nil {
				return err
			}
			for _, m := range members {
				rows, err := tx.DataRowsByRawContact(ctx, m.ID)
				if err != nil {
					return err
				}
				for _, row := range rows {
					if row.ID == d.ID || row.Kind != d.Kind || !row.IsSuperPrimary {
						continue
					}
					row.IsSuperPrimary = false
					if err := tx.UpdateDataRow(ctx, row); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// recomputeContactAttrs re-elects every derived attribute of a contact
// from its current members. The pass is deterministic and idempotent:
// running it twice with no intervening writes produces identical output.
func (e *Engine) recomputeContactAttrs(ctx context.Context, tx store.Tx, contactID int64) error {
	contact, err := tx.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	members, err := tx.RawContactsByContact(ctx, contactID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return tx.DeleteContact(ctx, contactID)
	}

	rowsByMember := make(map[int64][]*store.DataRow, len(members))
	for _, m := range members {
		rows, err := tx.DataRowsByRawContact(ctx, m.ID)
		if err != nil {
			return err
		}
		rowsByMember[m.ID] = rows
	}

	if err := e.electName(ctx, tx, contact, members, rowsByMember); err != nil {
		return err
	}
	electPhoto(contact, members, rowsByMember)
	electOptions(contact, members)
	if err := e.refreshContactPresence(ctx, tx, contact, members); err != nil {
		return err
	}

	return tx.UpdateContact(ctx, contact)
}

// electName picks the name-source raw contact (highest name-source
// precedence, lowest id on ties) and derives the contact's display name,
// phonetic name, and sort keys from it.
func (e *Engine) electName(ctx context.Context, tx store.Tx, contact *store.Contact, members []*store.RawContact, rowsByMember map[int64][]*store.DataRow) error {
	var best normalize.DisplayName
	var bestMember *store.RawContact
	for _, m := range members {
		d := normalize.DeriveDisplayName(rowsByMember[m.ID])
		if bestMember == nil || d.Source > best.Source {
			best = d
			bestMember = m
		}
	}
	if bestMember == nil {
		return nil
	}

	if bestMember.NameDataRowID != best.SourceRowID {
		bestMember.NameDataRowID = best.SourceRowID
		if err := tx.UpdateRawContact(ctx, bestMember); err != nil {
			return err
		}
	}

	contact.NameRawContactID = bestMember.ID
	contact.DisplayNamePrimary = best.Primary
	contact.DisplayNameAlternative = best.Alternative
	contact.DisplayNameSource = best.Source
	contact.PhoneticName = best.PhoneticName
	contact.PhoneticNameStyle = best.PhoneticStyle
	contact.SortKeyPrimary, contact.SortKeyAlternative = normalize.SortKeys(best)
	return nil
}

// electPhoto picks the contact photo: the is-super-primary photo row if
// one exists, then is-primary, then the newest row (highest id) as the
// stable tie-break.
func electPhoto(contact *store.Contact, members []*store.RawContact, rowsByMember map[int64][]*store.DataRow) {
	var elected *store.DataRow
	better := func(row *store.DataRow) bool {
		if elected == nil {
			return true
		}
		if row.IsSuperPrimary != elected.IsSuperPrimary {
			return row.IsSuperPrimary
		}
		if row.IsPrimary != elected.IsPrimary {
			return row.IsPrimary
		}
		return row.ID > elected.ID
	}
	for _, m := range members {
		for _, row := range rowsByMember[m.ID] {
			if row.Kind != store.KindPhoto || row.Photo == nil {
				continue
			}
			if row.Photo.FileID == "" && len(row.Photo.Thumbnail) == 0 {
				continue
			}
			if better(row) {
				elected = row
			}
		}
	}
	if elected == nil {
		contact.PhotoDataRowID = 0
		contact.PhotoFileID = ""
		contact.PhotoThumbnail = nil
		return
	}
	contact.PhotoDataRowID = elected.ID
	contact.PhotoFileID = elected.Photo.FileID
	contact.PhotoThumbnail = elected.Photo.Thumbnail
}

// electOptions folds per-member options into the contact:
//   - starred is the OR of member flags;
//   - send-to-voicemail is the AND, so one explicit "do ring" wins over
//     any number of "send to voicemail";
//   - ringtone is the first non-empty value in ascending member id order;
//   - times/last-time contacted take the max.
func electOptions(contact *store.Contact, members []*store.RawContact) {
	contact.Starred = false
	contact.SendToVoicemail = len(members) > 0
	contact.CustomRingtone = ""
	contact.TimesContacted = 0
	contact.LastTimeContacted = members[0].LastTimeContacted

	for _, m := range members {
		if m.Starred {
			contact.Starred = true
		}
		if !m.SendToVoicemail {
			contact.SendToVoicemail = false
		}
		if contact.CustomRingtone == "" && m.CustomRingtone != "" {
			contact.CustomRingtone = m.CustomRingtone
		}
		if m.TimesContacted > contact.TimesContacted {
			contact.TimesContacted = m.TimesContacted
		}
		if m.LastTimeContacted.After(contact.LastTimeContacted) {
			contact.LastTimeContacted = m.LastTimeContacted
		}
	}
}
