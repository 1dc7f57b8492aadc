package engine

import (
	"context"
	"sort"
	"time"

	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/store"
)

// RawContactRef is one fuzzy-lookup hit.
type RawContactRef struct {
	RawContactID int64  `json:"raw_contact_id"`
	ContactID    int64  `json:"contact_id"`
	DataRowID    int64  `json:"data_row_id"`
	DisplayName  string `json:"display_name,omitempty"`
}

// refreshLookupsForRow rebuilds the derived lookup entries for a phone or
// email row; other kinds have no per-row index.
func (e *Engine) refreshLookupsForRow(ctx context.Context, tx store.Tx, d *store.DataRow) error {
	switch d.Kind {
	case store.KindPhone:
		forms := e.phones.Normalize(d.Phone.Number)
		var entries []store.PhoneLookupEntry
		for _, key := range forms.Keys() {
			entries = append(entries, store.PhoneLookupEntry{
				DataRowID:    d.ID,
				RawContactID: d.RawContactID,
				Key:          key,
			})
		}
		if forms.MinMatch != "" {
			entries = append(entries, store.PhoneLookupEntry{
				DataRowID:    d.ID,
				RawContactID: d.RawContactID,
				Key:          forms.MinMatch,
				MinMatch:     true,
			})
		}
		return tx.ReplacePhoneLookup(ctx, d.ID, entries)
	case store.KindEmail:
		addr := normalize.FoldText(d.Email.Address)
		if addr == "" {
			return tx.ReplaceEmailLookup(ctx, d.ID, nil)
		}
		return tx.ReplaceEmailLookup(ctx, d.ID, []store.EmailLookupEntry{{
			DataRowID:    d.ID,
			RawContactID: d.RawContactID,
			Address:      addr,
		}})
	}
	return nil
}

// refreshNameLookup rebuilds the full-name match key for a raw contact
// from whatever its current display name derives to.
func (e *Engine) refreshNameLookup(ctx context.Context, tx store.Tx, rawContactID int64) error {
	rows, err := tx.DataRowsByRawContact(ctx, rawContactID)
	if err != nil {
		return err
	}
	name := normalize.DeriveDisplayName(rows)
	// Only person names make aggregation keys; a display name that fell
	// back to a bare phone number or email address must not glue
	// unrelated raw contacts together.
	if name.Source != store.NameSourceStructuredName && name.Source != store.NameSourceNickname {
		return tx.ReplaceNameLookup(ctx, rawContactID, nil)
	}
	key := normalize.NameMatchKey(name.Primary)
	if key == "" {
		return tx.ReplaceNameLookup(ctx, rawContactID, nil)
	}
	return tx.ReplaceNameLookup(ctx, rawContactID, []store.NameLookupEntry{{
		DataRowID:    name.SourceRowID,
		RawContactID: rawContactID,
		Key:          key,
	}})
}

// clearLookupsForRawContact drops every derived lookup entry for a raw
// contact, used on soft delete.
func (e *Engine) clearLookupsForRawContact(ctx context.Context, tx store.Tx, rawContactID int64) error {
	rows, err := tx.DataRowsByRawContact(ctx, rawContactID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch row.Kind {
		case store.KindPhone:
			if err := tx.ReplacePhoneLookup(ctx, row.ID, nil); err != nil {
				return err
			}
		case store.KindEmail:
			if err := tx.ReplaceEmailLookup(ctx, row.ID, nil); err != nil {
				return err
			}
		}
	}
	return tx.ReplaceNameLookup(ctx, rawContactID, nil)
}

// LookupByPhoneOrEmail resolves a free-form query against the lookup
// indices. Phone queries probe forms in precedence order (e164, then
// national, then the trailing-digit min-match form); email queries match
// the folded address exactly. Results are deduplicated by owning contact
// unless suppressDuplicates is false, and ordered by usage rank, then raw
// contact id. Min-match collisions yield multiple results by design.
func (e *Engine) LookupByPhoneOrEmail(ctx context.Context, query string, suppressDuplicates bool) ([]RawContactRef, error) {
	var refs []RawContactRef
	err := store.RunInTx(ctx, e.store, func(tx store.Tx) error {
		hits := map[int64]store.PhoneLookupEntry{}
		if isEmailQuery(query) {
			entries, err := tx.EmailLookup(ctx, normalize.FoldText(query))
			if err != nil {
				return err
			}
			for _, entry := range entries {
				hits[entry.DataRowID] = store.PhoneLookupEntry{
					DataRowID:    entry.DataRowID,
					RawContactID: entry.RawContactID,
				}
			}
		} else {
			forms := e.phones.Normalize(query)
			for _, key := range forms.Keys() {
				entries, err := tx.PhoneLookup(ctx, key)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if !entry.MinMatch {
						hits[entry.DataRowID] = entry
					}
				}
			}
			if forms.MinMatch != "" {
				entries, err := tx.PhoneLookup(ctx, forms.MinMatch)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if entry.MinMatch {
						if _, seen := hits[entry.DataRowID]; !seen {
							hits[entry.DataRowID] = entry
						}
					}
				}
			}
		}

		now := time.Now()
		type scored struct {
			ref  RawContactRef
			rank float64
		}
		var out []scored
		for _, entry := range hits {
			rc, err := tx.GetRawContact(ctx, entry.RawContactID)
			if err != nil {
				// The owning row vanished between index update and query;
				// fail closed by omitting the hit.
				continue
			}
			if rc.Deleted {
				continue
			}
			stats, err := tx.UsageStatsByDataRow(ctx, entry.DataRowID)
			if err != nil {
				return err
			}
			out = append(out, scored{
				ref: RawContactRef{
					RawContactID: rc.ID,
					ContactID:    rc.ContactID,
					DataRowID:    entry.DataRowID,
				},
				rank: RankScore(stats, now),
			})
		}

		sort.Slice(out, func(i, j int) bool {
			if out[i].rank != out[j].rank {
				return out[i].rank > out[j].rank
			}
			if out[i].ref.RawContactID != out[j].ref.RawContactID {
				return out[i].ref.RawContactID < out[j].ref.RawContactID
			}
			return out[i].ref.DataRowID < out[j].ref.DataRowID
		})

		seenContact := map[int64]bool{}
		for _, s := range out {
			if suppressDuplicates && s.ref.ContactID != 0 {
				if seenContact[s.ref.ContactID] {
					continue
				}
				seenContact[s.ref.ContactID] = true
			}
			ref := s.ref
			if c, err := tx.GetContact(ctx, ref.ContactID); err == nil {
				ref.DisplayName = c.DisplayNamePrimary
			}
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
