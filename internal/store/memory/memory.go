// Package memory implements store.Store over plain maps. It is the
// reference backend: transactions deep-copy the table set at Begin and
// swap it back on Commit, so a failed mutation leaves nothing behind.
// Writers are serialized, which matches the single-writer-per-mutation
// model; the dataset is expected to fit in memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jw6ventures/contactd/internal/store"
)

type usageKey struct {
	dataRowID int64
	usageType store.UsageType
}

type tables struct {
	seq int64

	rawContacts map[int64]*store.RawContact
	dataRows    map[int64]*store.DataRow
	contacts    map[int64]*store.Contact
	exceptions  map[[2]int64]*store.AggregationException

	phoneLookup map[int64][]store.PhoneLookupEntry
	emailLookup map[int64][]store.EmailLookupEntry
	nameLookup  map[int64][]store.NameLookupEntry

	presence map[int64]*store.PresenceRow
	usage    map[usageKey]*store.DataUsageStat
	photos   map[string]*store.PhotoRecord
	groups   map[int64]*store.Group

	streamItems      map[int64]*store.StreamItem
	streamItemPhotos map[int64]*store.StreamItemPhoto
}

func newTables() *tables {
	return &tables{
		rawContacts:      map[int64]*store.RawContact{},
		dataRows:         map[int64]*store.DataRow{},
		contacts:         map[int64]*store.Contact{},
		exceptions:       map[[2]int64]*store.AggregationException{},
		phoneLookup:      map[int64][]store.PhoneLookupEntry{},
		emailLookup:      map[int64][]store.EmailLookupEntry{},
		nameLookup:       map[int64][]store.NameLookupEntry{},
		presence:         map[int64]*store.PresenceRow{},
		usage:            map[usageKey]*store.DataUsageStat{},
		photos:           map[string]*store.PhotoRecord{},
		groups:           map[int64]*store.Group{},
		streamItems:      map[int64]*store.StreamItem{},
		streamItemPhotos: map[int64]*store.StreamItemPhoto{},
	}
}

func (t *tables) nextID() int64 {
	t.seq++
	return t.seq
}

func (t *tables) clone() *tables {
	c := newTables()
	c.seq = t.seq
	for k, v := range t.rawContacts {
		c.rawContacts[k] = cloneRawContact(v)
	}
	for k, v := range t.dataRows {
		c.dataRows[k] = v.Clone()
	}
	for k, v := range t.contacts {
		c.contacts[k] = cloneContact(v)
	}
	for k, v := range t.exceptions {
		e := *v
		c.exceptions[k] = &e
	}
	for k, v := range t.phoneLookup {
		c.phoneLookup[k] = append([]store.PhoneLookupEntry(nil), v...)
	}
	for k, v := range t.emailLookup {
		c.emailLookup[k] = append([]store.EmailLookupEntry(nil), v...)
	}
	for k, v := range t.nameLookup {
		c.nameLookup[k] = append([]store.NameLookupEntry(nil), v...)
	}
	for k, v := range t.presence {
		p := *v
		c.presence[k] = &p
	}
	for k, v := range t.usage {
		u := *v
		c.usage[k] = &u
	}
	for k, v := range t.photos {
		p := *v
		p.Thumbnail = append([]byte(nil), v.Thumbnail...)
		p.Display = append([]byte(nil), v.Display...)
		c.photos[k] = &p
	}
	for k, v := range t.groups {
		g := *v
		if v.Account != nil {
			a := *v.Account
			g.Account = &a
		}
		c.groups[k] = &g
	}
	for k, v := range t.streamItems {
		s := *v
		c.streamItems[k] = &s
	}
	for k, v := range t.streamItemPhotos {
		p := *v
		c.streamItemPhotos[k] = &p
	}
	return c
}

func cloneRawContact(rc *store.RawContact) *store.RawContact {
	c := *rc
	if rc.Account != nil {
		a := *rc.Account
		c.Account = &a
	}
	return &c
}

func cloneContact(c *store.Contact) *store.Contact {
	cc := *c
	cc.PhotoThumbnail = append([]byte(nil), c.PhotoThumbnail...)
	if c.Presence != nil {
		p := *c.Presence
		cc.Presence = &p
	}
	return &cc
}

// Store is the in-memory store.
type Store struct {
	mu     sync.Mutex
	tables *tables
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: newTables()}
}

// Begin locks the store and hands out a transaction over a private copy
// of the tables.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &memTx{store: s, t: s.tables.clone()}, nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

type memTx struct {
	store *Store
	t     *tables
	done  bool
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.tables = tx.t
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

// Raw contacts.

func (tx *memTx) InsertRawContact(ctx context.Context, rc *store.RawContact) (int64, error) {
	rc.ID = tx.t.nextID()
	tx.t.rawContacts[rc.ID] = cloneRawContact(rc)
	return rc.ID, nil
}

func (tx *memTx) GetRawContact(ctx context.Context, id int64) (*store.RawContact, error) {
	rc, ok := tx.t.rawContacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRawContact(rc), nil
}

func (tx *memTx) UpdateRawContact(ctx context.Context, rc *store.RawContact) error {
	if _, ok := tx.t.rawContacts[rc.ID]; !ok {
		return store.ErrNotFound
	}
	tx.t.rawContacts[rc.ID] = cloneRawContact(rc)
	return nil
}

func (tx *memTx) DeleteRawContact(ctx context.Context, id int64) error {
	if _, ok := tx.t.rawContacts[id]; !ok {
		return store.ErrNotFound
	}
	for rowID, d := range tx.t.dataRows {
		if d.RawContactID == id {
			tx.deleteDataRowCascade(rowID)
		}
	}
	delete(tx.t.nameLookup, id)
	for itemID, si := range tx.t.streamItems {
		if si.RawContactID == id {
			for photoID, sp := range tx.t.streamItemPhotos {
				if sp.StreamItemID == itemID {
					delete(tx.t.streamItemPhotos, photoID)
				}
			}
			delete(tx.t.streamItems, itemID)
		}
	}
	for key, e := range tx.t.exceptions {
		if e.RawContactID1 == id || e.RawContactID2 == id {
			delete(tx.t.exceptions, key)
		}
	}
	delete(tx.t.rawContacts, id)
	return nil
}

func (tx *memTx) RawContactsByContact(ctx context.Context, contactID int64) ([]*store.RawContact, error) {
	var out []*store.RawContact
	for _, rc := range tx.t.rawContacts {
		if rc.ContactID == contactID {
			out = append(out, cloneRawContact(rc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) ListRawContacts(ctx context.Context) ([]*store.RawContact, error) {
	out := make([]*store.RawContact, 0, len(tx.t.rawContacts))
	for _, rc := range tx.t.rawContacts {
		out = append(out, cloneRawContact(rc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Data rows.

func (tx *memTx) InsertDataRow(ctx context.Context, d *store.DataRow) (int64, error) {
	d.ID = tx.t.nextID()
	tx.t.dataRows[d.ID] = d.Clone()
	return d.ID, nil
}

func (tx *memTx) GetDataRow(ctx context.Context, id int64) (*store.DataRow, error) {
	d, ok := tx.t.dataRows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d.Clone(), nil
}

func (tx *memTx) UpdateDataRow(ctx context.Context, d *store.DataRow) error {
	if _, ok := tx.t.dataRows[d.ID]; !ok {
		return store.ErrNotFound
	}
	tx.t.dataRows[d.ID] = d.Clone()
	return nil
}

func (tx *memTx) deleteDataRowCascade(id int64) {
	delete(tx.t.phoneLookup, id)
	delete(tx.t.emailLookup, id)
	for presenceID, p := range tx.t.presence {
		if p.DataRowID == id {
			delete(tx.t.presence, presenceID)
		}
	}
	for key := range tx.t.usage {
		if key.dataRowID == id {
			delete(tx.t.usage, key)
		}
	}
	delete(tx.t.dataRows, id)
}

func (tx *memTx) DeleteDataRow(ctx context.Context, id int64) error {
	if _, ok := tx.t.dataRows[id]; !ok {
		return store.ErrNotFound
	}
	tx.deleteDataRowCascade(id)
	return nil
}

func (tx *memTx) DataRowsByRawContact(ctx context.Context, rawContactID int64) ([]*store.DataRow, error) {
	var out []*store.DataRow
	for _, d := range tx.t.dataRows {
		if d.RawContactID == rawContactID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) DataRowsByKind(ctx context.Context, kind store.DataKind) ([]*store.DataRow, error) {
	var out []*store.DataRow
	for _, d := range tx.t.dataRows {
		if d.Kind == kind {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Contacts.

func (tx *memTx) InsertContact(ctx context.Context, c *store.Contact) (int64, error) {
	c.ID = tx.t.nextID()
	tx.t.contacts[c.ID] = cloneContact(c)
	return c.ID, nil
}

func (tx *memTx) GetContact(ctx context.Context, id int64) (*store.Contact, error) {
	c, ok := tx.t.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneContact(c), nil
}

func (tx *memTx) UpdateContact(ctx context.Context, c *store.Contact) error {
	if _, ok := tx.t.contacts[c.ID]; !ok {
		return store.ErrNotFound
	}
	tx.t.contacts[c.ID] = cloneContact(c)
	return nil
}

func (tx *memTx) DeleteContact(ctx context.Context, id int64) error {
	if _, ok := tx.t.contacts[id]; !ok {
		return store.ErrNotFound
	}
	delete(tx.t.contacts, id)
	return nil
}

// Aggregation exceptions.

func exceptionKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func (tx *memTx) UpsertAggregationException(ctx context.Context, e *store.AggregationException) error {
	e.Canonicalize()
	c := *e
	tx.t.exceptions[exceptionKey(e.RawContactID1, e.RawContactID2)] = &c
	return nil
}

func (tx *memTx) DeleteAggregationException(ctx context.Context, a, b int64) error {
	delete(tx.t.exceptions, exceptionKey(a, b))
	return nil
}

func (tx *memTx) AggregationExceptionsFor(ctx context.Context, rawContactID int64) ([]*store.AggregationException, error) {
	var out []*store.AggregationException
	for _, e := range tx.t.exceptions {
		if e.RawContactID1 == rawContactID || e.RawContactID2 == rawContactID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RawContactID1 != out[j].RawContactID1 {
			return out[i].RawContactID1 < out[j].RawContactID1
		}
		return out[i].RawContactID2 < out[j].RawContactID2
	})
	return out, nil
}

// Lookup indices.

func (tx *memTx) ReplacePhoneLookup(ctx context.Context, dataRowID int64, entries []store.PhoneLookupEntry) error {
	if len(entries) == 0 {
		delete(tx.t.phoneLookup, dataRowID)
		return nil
	}
	tx.t.phoneLookup[dataRowID] = append([]store.PhoneLookupEntry(nil), entries...)
	return nil
}

func (tx *memTx) PhoneLookup(ctx context.Context, key string) ([]store.PhoneLookupEntry, error) {
	var out []store.PhoneLookupEntry
	for _, entries := range tx.t.phoneLookup {
		for _, e := range entries {
			if e.Key == key {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataRowID < out[j].DataRowID })
	return out, nil
}

func (tx *memTx) ReplaceEmailLookup(ctx context.Context, dataRowID int64, entries []store.EmailLookupEntry) error {
	if len(entries) == 0 {
		delete(tx.t.emailLookup, dataRowID)
		return nil
	}
	tx.t.emailLookup[dataRowID] = append([]store.EmailLookupEntry(nil), entries...)
	return nil
}

func (tx *memTx) EmailLookup(ctx context.Context, address string) ([]store.EmailLookupEntry, error) {
	var out []store.EmailLookupEntry
	for _, entries := range tx.t.emailLookup {
		for _, e := range entries {
			if e.Address == address {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataRowID < out[j].DataRowID })
	return out, nil
}

func (tx *memTx) ReplaceNameLookup(ctx context.Context, rawContactID int64, entries []store.NameLookupEntry) error {
	if len(entries) == 0 {
		delete(tx.t.nameLookup, rawContactID)
		return nil
	}
	tx.t.nameLookup[rawContactID] = append([]store.NameLookupEntry(nil), entries...)
	return nil
}

func (tx *memTx) NameLookup(ctx context.Context, key string) ([]store.NameLookupEntry, error) {
	var out []store.NameLookupEntry
	for _, entries := range tx.t.nameLookup {
		for _, e := range entries {
			if e.Key == key {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RawContactID < out[j].RawContactID })
	return out, nil
}

// Presence.

func (tx *memTx) UpsertPresence(ctx context.Context, p *store.PresenceRow) (int64, error) {
	if p.ID == 0 {
		for _, existing := range tx.t.presence {
			if existing.DataRowID == p.DataRowID {
				p.ID = existing.ID
				break
			}
		}
	}
	if p.ID == 0 {
		p.ID = tx.t.nextID()
	}
	c := *p
	tx.t.presence[p.ID] = &c
	return p.ID, nil
}

func (tx *memTx) DeletePresence(ctx context.Context, id int64) error {
	if _, ok := tx.t.presence[id]; !ok {
		return store.ErrNotFound
	}
	delete(tx.t.presence, id)
	return nil
}

func (tx *memTx) PresenceByDataRow(ctx context.Context, dataRowID int64) (*store.PresenceRow, error) {
	for _, p := range tx.t.presence {
		if p.DataRowID == dataRowID {
			c := *p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (tx *memTx) PresenceByRawContact(ctx context.Context, rawContactID int64) ([]*store.PresenceRow, error) {
	var out []*store.PresenceRow
	for _, p := range tx.t.presence {
		if p.RawContactID == rawContactID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Usage stats.

func (tx *memTx) GetUsageStat(ctx context.Context, dataRowID int64, usageType store.UsageType) (*store.DataUsageStat, error) {
	s, ok := tx.t.usage[usageKey{dataRowID, usageType}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (tx *memTx) UpsertUsageStat(ctx context.Context, s *store.DataUsageStat) error {
	c := *s
	tx.t.usage[usageKey{s.DataRowID, s.Type}] = &c
	return nil
}

func (tx *memTx) UsageStatsByDataRow(ctx context.Context, dataRowID int64) ([]*store.DataUsageStat, error) {
	var out []*store.DataUsageStat
	for key, s := range tx.t.usage {
		if key.dataRowID == dataRowID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// Photo records.

func (tx *memTx) InsertPhotoRecord(ctx context.Context, p *store.PhotoRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	c := *p
	c.Thumbnail = append([]byte(nil), p.Thumbnail...)
	c.Display = append([]byte(nil), p.Display...)
	tx.t.photos[p.FileID] = &c
	return nil
}

func (tx *memTx) GetPhotoRecord(ctx context.Context, fileID string) (*store.PhotoRecord, error) {
	p, ok := tx.t.photos[fileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *p
	c.Thumbnail = append([]byte(nil), p.Thumbnail...)
	c.Display = append([]byte(nil), p.Display...)
	return &c, nil
}

func (tx *memTx) DeletePhotoRecord(ctx context.Context, fileID string) error {
	if _, ok := tx.t.photos[fileID]; !ok {
		return store.ErrNotFound
	}
	delete(tx.t.photos, fileID)
	return nil
}

func (tx *memTx) ListPhotoFileIDs(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(tx.t.photos))
	for id := range tx.t.photos {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Groups.

func (tx *memTx) InsertGroup(ctx context.Context, g *store.Group) (int64, error) {
	g.ID = tx.t.nextID()
	c := *g
	if g.Account != nil {
		a := *g.Account
		c.Account = &a
	}
	tx.t.groups[g.ID] = &c
	return g.ID, nil
}

func (tx *memTx) GetGroup(ctx context.Context, id int64) (*store.Group, error) {
	g, ok := tx.t.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *g
	if g.Account != nil {
		a := *g.Account
		c.Account = &a
	}
	return &c, nil
}

func (tx *memTx) UpdateGroup(ctx context.Context, g *store.Group) error {
	if _, ok := tx.t.groups[g.ID]; !ok {
		return store.ErrNotFound
	}
	c := *g
	if g.Account != nil {
		a := *g.Account
		c.Account = &a
	}
	tx.t.groups[g.ID] = &c
	return nil
}

func (tx *memTx) DeleteGroup(ctx context.Context, id int64) error {
	if _, ok := tx.t.groups[id]; !ok {
		return store.ErrNotFound
	}
	delete(tx.t.groups, id)
	return nil
}

func (tx *memTx) ListGroups(ctx context.Context) ([]*store.Group, error) {
	out := make([]*store.Group, 0, len(tx.t.groups))
	for _, g := range tx.t.groups {
		c := *g
		if g.Account != nil {
			a := *g.Account
			c.Account = &a
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stream items.

func (tx *memTx) InsertStreamItem(ctx context.Context, s *store.StreamItem) (int64, error) {
	s.ID = tx.t.nextID()
	c := *s
	tx.t.streamItems[s.ID] = &c
	return s.ID, nil
}

func (tx *memTx) StreamItemsByRawContact(ctx context.Context, rawContactID int64) ([]*store.StreamItem, error) {
	var out []*store.StreamItem
	for _, s := range tx.t.streamItems {
		if s.RawContactID == rawContactID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) InsertStreamItemPhoto(ctx context.Context, p *store.StreamItemPhoto) (int64, error) {
	p.ID = tx.t.nextID()
	c := *p
	tx.t.streamItemPhotos[p.ID] = &c
	return p.ID, nil
}

func (tx *memTx) UpdateStreamItemPhoto(ctx context.Context, p *store.StreamItemPhoto) error {
	if _, ok := tx.t.streamItemPhotos[p.ID]; !ok {
		return store.ErrNotFound
	}
	c := *p
	tx.t.streamItemPhotos[p.ID] = &c
	return nil
}

func (tx *memTx) ListStreamItemPhotos(ctx context.Context) ([]*store.StreamItemPhoto, error) {
	out := make([]*store.StreamItemPhoto, 0, len(tx.t.streamItemPhotos))
	for _, p := range tx.t.streamItemPhotos {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
