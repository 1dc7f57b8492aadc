package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/contactd/internal/store"
)

const rawContactCols = `id, account_name, account_type, source_id, deleted, dirty, version,
starred, starred_directly, aggregation_mode, times_contacted, last_time_contacted,
custom_ringtone, send_to_voicemail, read_only, name_data_row_id, contact_id`

func (t *pgTx) InsertRawContact(ctx context.Context, rc *store.RawContact) (int64, error) {
	name, typ := accountCols(rc.Account)
	const q = `INSERT INTO raw_contacts (
        account_name, account_type, source_id, deleted, dirty, version,
        starred, starred_directly, aggregation_mode, times_contacted, last_time_contacted,
        custom_ringtone, send_to_voicemail, read_only, name_data_row_id, contact_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`
	err := t.tx.QueryRow(ctx, q,
		name, typ, rc.SourceID, rc.Deleted, rc.Dirty, rc.Version,
		rc.Starred, rc.StarredDirectly, rc.AggregationMode, rc.TimesContacted, nullTime(rc.LastTimeContacted),
		rc.CustomRingtone, rc.SendToVoicemail, rc.ReadOnly, rc.NameDataRowID, rc.ContactID,
	).Scan(&rc.ID)
	return rc.ID, mapErr(err)
}

func (t *pgTx) GetRawContact(ctx context.Context, id int64) (*store.RawContact, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+rawContactCols+` FROM raw_contacts WHERE id=$1`, id)
	return scanRawContact(row)
}

func (t *pgTx) UpdateRawContact(ctx context.Context, rc *store.RawContact) error {
	name, typ := accountCols(rc.Account)
	const q = `UPDATE raw_contacts SET
        account_name=$2, account_type=$3, source_id=$4, deleted=$5, dirty=$6, version=$7,
        starred=$8, starred_directly=$9, aggregation_mode=$10, times_contacted=$11, last_time_contacted=$12,
        custom_ringtone=$13, send_to_voicemail=$14, read_only=$15, name_data_row_id=$16, contact_id=$17
WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q,
		rc.ID, name, typ, rc.SourceID, rc.Deleted, rc.Dirty, rc.Version,
		rc.Starred, rc.StarredDirectly, rc.AggregationMode, rc.TimesContacted, nullTime(rc.LastTimeContacted),
		rc.CustomRingtone, rc.SendToVoicemail, rc.ReadOnly, rc.NameDataRowID, rc.ContactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteRawContact(ctx context.Context, id int64) error {
	// Data rows, lookups, presence, usage, stream items, and exceptions
	// go with the row through ON DELETE CASCADE.
	tag, err := t.tx.Exec(ctx, `DELETE FROM raw_contacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) RawContactsByContact(ctx context.Context, contactID int64) ([]*store.RawContact, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+rawContactCols+` FROM raw_contacts WHERE contact_id=$1 ORDER BY id`, contactID)
	if err != nil {
		return nil, err
	}
	return scanRawContacts(rows)
}

func (t *pgTx) ListRawContacts(ctx context.Context) ([]*store.RawContact, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+rawContactCols+` FROM raw_contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanRawContacts(rows)
}

func scanRawContact(row pgx.Row) (*store.RawContact, error) {
	var (
		rc        store.RawContact
		name, typ *string
		last      *time.Time
	)
	err := row.Scan(&rc.ID, &name, &typ, &rc.SourceID, &rc.Deleted, &rc.Dirty, &rc.Version,
		&rc.Starred, &rc.StarredDirectly, &rc.AggregationMode, &rc.TimesContacted, &last,
		&rc.CustomRingtone, &rc.SendToVoicemail, &rc.ReadOnly, &rc.NameDataRowID, &rc.ContactID)
	if err != nil {
		return nil, mapErr(err)
	}
	rc.Account = accountFromCols(name, typ)
	rc.LastTimeContacted = fromNullTime(last)
	return &rc, nil
}

func scanRawContacts(rows pgx.Rows) ([]*store.RawContact, error) {
	defer rows.Close()
	var out []*store.RawContact
	for rows.Next() {
		rc, err := scanRawContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
