package engine

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/metrics"
	"github.com/jw6ventures/contactd/internal/normalize"
	"github.com/jw6ventures/contactd/internal/store"
)

// aggregateRawContact runs one step of the membership state machine for
// rc: gather candidates by match key, apply exceptions, union into a
// survivor contact, split when nothing holds the raw contact to its
// current contact, then re-elect attributes for every affected contact.
func (e *Engine) aggregateRawContact(ctx context.Context, tx store.Tx, rc *store.RawContact) error {
	if rc.Deleted {
		return nil
	}
	if rc.AggregationMode == store.AggregationSuspended {
		// Deferred until the mode changes back.
		return nil
	}

	separate, together, err := e.exceptionPartners(ctx, tx, rc.ID)
	if err != nil {
		return err
	}

	candidates := map[int64]bool{}
	if rc.AggregationMode != store.AggregationDisabled {
		if err := e.matchKeyCandidates(ctx, tx, rc, candidates); err != nil {
			return err
		}
	}
	// keep-together applies even to aggregation-disabled raw contacts,
	// but never resurrects a soft-deleted partner.
	for _, id := range together {
		partner, err := tx.GetRawContact(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if partner.Deleted {
			continue
		}
		candidates[id] = true
	}
	for id := range candidates {
		if separate[id] {
			delete(candidates, id)
		}
	}

	affected := map[int64]bool{}
	if rc.ContactID != 0 {
		affected[rc.ContactID] = true
	}

	admitted, err := e.admitCandidates(ctx, tx, rc, candidates)
	if err != nil {
		return err
	}

	if len(admitted) == 0 {
		if err := e.splitIfUnmatched(ctx, tx, rc, affected); err != nil {
			return err
		}
	} else {
		if err := e.unionInto(ctx, tx, rc, admitted, affected); err != nil {
			return err
		}
	}

	if rc.ContactID == 0 {
		if err := e.ensureOwnContact(ctx, tx, rc); err != nil {
			return err
		}
		affected[rc.ContactID] = true
	}

	ids := make([]int64, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := e.cleanupContact(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// exceptionPartners splits rc's exceptions into the veto set and the
// forced-merge list.
func (e *Engine) exceptionPartners(ctx context.Context, tx store.Tx, rawContactID int64) (separate map[int64]bool, together []int64, err error) {
	excs, err := tx.AggregationExceptionsFor(ctx, rawContactID)
	if err != nil {
		return nil, nil, err
	}
	separate = map[int64]bool{}
	for _, exc := range excs {
		other := exc.Other(rawContactID)
		if other == 0 {
			continue
		}
		switch exc.Type {
		case store.KeepSeparate:
			separate[other] = true
		case store.KeepTogether:
			together = append(together, other)
		}
	}
	return separate, together, nil
}

// matchKeyCandidates collects raw contacts sharing an exact normalized
// phone, email, or full-name key with rc.
func (e *Engine) matchKeyCandidates(ctx context.Context, tx store.Tx, rc *store.RawContact, out map[int64]bool) error {
	rows, err := tx.DataRowsByRawContact(ctx, rc.ID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch row.Kind {
		case store.KindPhone:
			forms := e.phones.Normalize(row.Phone.Number)
			for _, key := range forms.Keys() {
				entries, err := tx.PhoneLookup(ctx, key)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if !entry.MinMatch && entry.RawContactID != rc.ID {
						out[entry.RawContactID] = true
					}
				}
			}
		case store.KindEmail:
			addr := normalize.FoldText(row.Email.Address)
			if addr == "" {
				continue
			}
			entries, err := tx.EmailLookup(ctx, addr)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if entry.RawContactID != rc.ID {
					out[entry.RawContactID] = true
				}
			}
		}
	}

	name := normalize.DeriveDisplayName(rows)
	if key := normalize.NameMatchKey(name.Primary); key != "" {
		entries, err := tx.NameLookup(ctx, key)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.RawContactID != rc.ID {
				out[entry.RawContactID] = true
			}
		}
	}

	// Filter candidates that are deleted or opted out of automatic
	// matching; those only join through keep-together.
	for id := range out {
		cand, err := tx.GetRawContact(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				delete(out, id)
				continue
			}
			return err
		}
		if cand.Deleted || cand.AggregationMode == store.AggregationDisabled ||
			cand.AggregationMode == store.AggregationSuspended {
			delete(out, id)
		}
	}
	return nil
}

// admitCandidates expands candidates to their whole contact clusters and
// admits clusters one at a time, skipping any cluster that would place a
// keep-separate pair in the same contact. An explicit split directive is
// never overridden by transitive matches. Clusters attached to a contact
// are visited in ascending contact-id order, loose raw contacts after
// them in ascending id order, so the outcome is deterministic.
func (e *Engine) admitCandidates(ctx context.Context, tx store.Tx, rc *store.RawContact, candidates map[int64]bool) ([]*store.RawContact, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	type cluster struct {
		contactID int64
		members   []*store.RawContact
	}
	var clusters []cluster
	seenContact := map[int64]bool{}
	var loose []int64
	for id := range candidates {
		cand, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return nil, err
		}
		if cand.Deleted {
			continue
		}
		if cand.ContactID == 0 {
			loose = append(loose, id)
			continue
		}
		if cand.ContactID == rc.ContactID && rc.ContactID != 0 {
			// Already together.
			continue
		}
		if seenContact[cand.ContactID] {
			continue
		}
		seenContact[cand.ContactID] = true
		members, err := tx.RawContactsByContact(ctx, cand.ContactID)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster{contactID: cand.ContactID, members: members})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].contactID < clusters[j].contactID })
	sort.Slice(loose, func(i, j int) bool { return loose[i] < loose[j] })
	for _, id := range loose {
		cand, err := tx.GetRawContact(ctx, id)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster{members: []*store.RawContact{cand}})
	}

	admittedSet := map[int64]bool{rc.ID: true}
	if rc.ContactID != 0 {
		own, err := tx.RawContactsByContact(ctx, rc.ContactID)
		if err != nil {
			return nil, err
		}
		for _, m := range own {
			admittedSet[m.ID] = true
		}
	}

	var admitted []*store.RawContact
	for _, cl := range clusters {
		ok := true
		for _, m := range cl.members {
			sep, _, err := e.exceptionPartners(ctx, tx, m.ID)
			if err != nil {
				return nil, err
			}
			for other := range admittedSet {
				if sep[other] {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		for _, m := range cl.members {
			admittedSet[m.ID] = true
			admitted = append(admitted, m)
		}
	}
	return admitted, nil
}

// unionInto moves rc and all admitted members into the survivor contact:
// the lowest existing contact id among the participants, which keeps
// merge results associative.
func (e *Engine) unionInto(ctx context.Context, tx store.Tx, rc *store.RawContact, admitted []*store.RawContact, affected map[int64]bool) error {
	survivor := rc.ContactID
	for _, m := range admitted {
		if m.ContactID != 0 && (survivor == 0 || m.ContactID < survivor) {
			survivor = m.ContactID
		}
	}
	if survivor == 0 {
		contact := &store.Contact{}
		id, err := tx.InsertContact(ctx, contact)
		if err != nil {
			return err
		}
		survivor = id
	}
	affected[survivor] = true

	merged := 0
	move := func(m *store.RawContact) error {
		if m.ContactID == survivor {
			return nil
		}
		if m.ContactID != 0 {
			affected[m.ContactID] = true
		}
		m.ContactID = survivor
		merged++
		return tx.UpdateRawContact(ctx, m)
	}
	if err := move(rc); err != nil {
		return err
	}
	for _, m := range admitted {
		if err := move(m); err != nil {
			return err
		}
	}
	if merged > 0 {
		metrics.AddContactsMerged(merged)
		e.logger.Debug("aggregated raw contacts",
			zap.Int64("contact_id", survivor),
			zap.Int("moved", merged))
	}
	return nil
}

// splitIfUnmatched moves rc into its own new contact when no remaining
// member of its current contact matches it and no keep-together exception
// applies.
func (e *Engine) splitIfUnmatched(ctx context.Context, tx store.Tx, rc *store.RawContact, affected map[int64]bool) error {
	if rc.ContactID == 0 {
		return nil
	}
	members, err := tx.RawContactsByContact(ctx, rc.ContactID)
	if err != nil {
		return err
	}
	if len(members) <= 1 {
		return nil
	}

	held, err := e.heldToContact(ctx, tx, rc, members)
	if err != nil {
		return err
	}
	if held {
		return nil
	}

	affected[rc.ContactID] = true
	contact := &store.Contact{}
	id, err := tx.InsertContact(ctx, contact)
	if err != nil {
		return err
	}
	rc.ContactID = id
	affected[id] = true
	metrics.AddContactsSplit(1)
	return tx.UpdateRawContact(ctx, rc)
}

// heldToContact reports whether any other member still shares a match
// key or a keep-together exception with rc.
func (e *Engine) heldToContact(ctx context.Context, tx store.Tx, rc *store.RawContact, members []*store.RawContact) (bool, error) {
	separate, together, err := e.exceptionPartners(ctx, tx, rc.ID)
	if err != nil {
		return false, err
	}
	memberSet := map[int64]bool{}
	for _, m := range members {
		if m.ID != rc.ID {
			memberSet[m.ID] = true
		}
	}
	for _, id := range together {
		if memberSet[id] {
			return true, nil
		}
	}
	if rc.AggregationMode == store.AggregationDisabled {
		return false, nil
	}

	candidates := map[int64]bool{}
	if err := e.matchKeyCandidates(ctx, tx, rc, candidates); err != nil {
		return false, err
	}
	for id := range candidates {
		if memberSet[id] && !separate[id] {
			return true, nil
		}
	}
	return false, nil
}

// ensureOwnContact gives an unaggregated raw contact a contact of its
// own.
func (e *Engine) ensureOwnContact(ctx context.Context, tx store.Tx, rc *store.RawContact) error {
	if rc.ContactID != 0 {
		return nil
	}
	contact := &store.Contact{}
	id, err := tx.InsertContact(ctx, contact)
	if err != nil {
		return err
	}
	rc.ContactID = id
	return tx.UpdateRawContact(ctx, rc)
}
