package store

import "context"

// Store opens transactions over the contact tables. Every external
// mutation runs inside exactly one transaction, including its cascading
// recomputation, so readers observe either the pre- or post-mutation
// state.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	HealthCheck(ctx context.Context) error
	Close()
}

// Tx is a single transaction over the logical tables. Deletes cascade:
// removing a raw contact removes its data rows, lookup entries, presence
// rows, usage stats, and stream items; removing a data row removes its
// lookup entries, presence rows, and usage stats.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Raw contacts.
	InsertRawContact(ctx context.Context, rc *RawContact) (int64, error)
	GetRawContact(ctx context.Context, id int64) (*RawContact, error)
	UpdateRawContact(ctx context.Context, rc *RawContact) error
	DeleteRawContact(ctx context.Context, id int64) error
	RawContactsByContact(ctx context.Context, contactID int64) ([]*RawContact, error)
	ListRawContacts(ctx context.Context) ([]*RawContact, error)

	// Data rows.
	InsertDataRow(ctx context.Context, d *DataRow) (int64, error)
	GetDataRow(ctx context.Context, id int64) (*DataRow, error)
	UpdateDataRow(ctx context.Context, d *DataRow) error
	DeleteDataRow(ctx context.Context, id int64) error
	DataRowsByRawContact(ctx context.Context, rawContactID int64) ([]*DataRow, error)
	DataRowsByKind(ctx context.Context, kind DataKind) ([]*DataRow, error)

	// Contacts.
	InsertContact(ctx context.Context, c *Contact) (int64, error)
	GetContact(ctx context.Context, id int64) (*Contact, error)
	UpdateContact(ctx context.Context, c *Contact) error
	DeleteContact(ctx context.Context, id int64) error

	// Aggregation exceptions.
	UpsertAggregationException(ctx context.Context, e *AggregationException) error
	DeleteAggregationException(ctx context.Context, rawContactID1, rawContactID2 int64) error
	AggregationExceptionsFor(ctx context.Context, rawContactID int64) ([]*AggregationException, error)

	// Lookup indices. Replace semantics: all existing entries for the
	// data row (or raw contact, for names) are dropped first.
	ReplacePhoneLookup(ctx context.Context, dataRowID int64, entries []PhoneLookupEntry) error
	PhoneLookup(ctx context.Context, key string) ([]PhoneLookupEntry, error)
	ReplaceEmailLookup(ctx context.Context, dataRowID int64, entries []EmailLookupEntry) error
	EmailLookup(ctx context.Context, address string) ([]EmailLookupEntry, error)
	ReplaceNameLookup(ctx context.Context, rawContactID int64, entries []NameLookupEntry) error
	NameLookup(ctx context.Context, key string) ([]NameLookupEntry, error)

	// Presence.
	UpsertPresence(ctx context.Context, p *PresenceRow) (int64, error)
	DeletePresence(ctx context.Context, id int64) error
	PresenceByDataRow(ctx context.Context, dataRowID int64) (*PresenceRow, error)
	PresenceByRawContact(ctx context.Context, rawContactID int64) ([]*PresenceRow, error)

	// Usage stats.
	GetUsageStat(ctx context.Context, dataRowID int64, usageType UsageType) (*DataUsageStat, error)
	UpsertUsageStat(ctx context.Context, s *DataUsageStat) error
	UsageStatsByDataRow(ctx context.Context, dataRowID int64) ([]*DataUsageStat, error)

	// Photo records.
	InsertPhotoRecord(ctx context.Context, p *PhotoRecord) error
	GetPhotoRecord(ctx context.Context, fileID string) (*PhotoRecord, error)
	DeletePhotoRecord(ctx context.Context, fileID string) error
	ListPhotoFileIDs(ctx context.Context) ([]string, error)

	// Groups.
	InsertGroup(ctx context.Context, g *Group) (int64, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	UpdateGroup(ctx context.Context, g *Group) error
	DeleteGroup(ctx context.Context, id int64) error
	ListGroups(ctx context.Context) ([]*Group, error)

	// Stream items.
	InsertStreamItem(ctx context.Context, s *StreamItem) (int64, error)
	StreamItemsByRawContact(ctx context.Context, rawContactID int64) ([]*StreamItem, error)
	InsertStreamItemPhoto(ctx context.Context, p *StreamItemPhoto) (int64, error)
	UpdateStreamItemPhoto(ctx context.Context, p *StreamItemPhoto) error
	ListStreamItemPhotos(ctx context.Context) ([]*StreamItemPhoto, error)
}

// RunInTx executes fn inside a transaction, committing on success and
// rolling back on error or panic.
func RunInTx(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
