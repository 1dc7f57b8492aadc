package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/contactd/internal/store"
)

const dataRowCols = `id, raw_contact_id, kind, is_primary, is_super_primary, is_read_only, payload`

func (t *pgTx) InsertDataRow(ctx context.Context, d *store.DataRow) (int64, error) {
	payload, err := d.MarshalPayload()
	if err != nil {
		return 0, err
	}
	const q = `INSERT INTO data_rows (raw_contact_id, kind, is_primary, is_super_primary, is_read_only, payload)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	err = t.tx.QueryRow(ctx, q,
		d.RawContactID, d.Kind, d.IsPrimary, d.IsSuperPrimary, d.IsReadOnly, payload).Scan(&d.ID)
	return d.ID, mapErr(err)
}

func (t *pgTx) GetDataRow(ctx context.Context, id int64) (*store.DataRow, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+dataRowCols+` FROM data_rows WHERE id=$1`, id)
	return scanDataRow(row)
}

func (t *pgTx) UpdateDataRow(ctx context.Context, d *store.DataRow) error {
	payload, err := d.MarshalPayload()
	if err != nil {
		return err
	}
	const q = `UPDATE data_rows SET raw_contact_id=$2, kind=$3, is_primary=$4, is_super_primary=$5, is_read_only=$6, payload=$7
WHERE id=$1`
	tag, err := t.tx.Exec(ctx, q,
		d.ID, d.RawContactID, d.Kind, d.IsPrimary, d.IsSuperPrimary, d.IsReadOnly, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteDataRow(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM data_rows WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DataRowsByRawContact(ctx context.Context, rawContactID int64) ([]*store.DataRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+dataRowCols+` FROM data_rows WHERE raw_contact_id=$1 ORDER BY id`, rawContactID)
	if err != nil {
		return nil, err
	}
	return scanDataRows(rows)
}

func (t *pgTx) DataRowsByKind(ctx context.Context, kind store.DataKind) ([]*store.DataRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+dataRowCols+` FROM data_rows WHERE kind=$1 ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	return scanDataRows(rows)
}

func scanDataRow(row pgx.Row) (*store.DataRow, error) {
	var (
		d       store.DataRow
		payload []byte
	)
	err := row.Scan(&d.ID, &d.RawContactID, &d.Kind, &d.IsPrimary, &d.IsSuperPrimary, &d.IsReadOnly, &payload)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := d.UnmarshalPayload(payload); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDataRows(rows pgx.Rows) ([]*store.DataRow, error) {
	defer rows.Close()
	var out []*store.DataRow
	for rows.Next() {
		d, err := scanDataRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
