package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/contactd/internal/store"
)

const presenceRowCols = `id, data_row_id, raw_contact_id, protocol, custom_protocol, handle, state, status_text, status_ts`

func (t *pgTx) UpsertPresence(ctx context.Context, p *store.PresenceRow) (int64, error) {
	const q = `INSERT INTO presence (data_row_id, raw_contact_id, protocol, custom_protocol, handle, state, status_text, status_ts)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (data_row_id) DO UPDATE SET
        raw_contact_id=EXCLUDED.raw_contact_id, protocol=EXCLUDED.protocol,
        custom_protocol=EXCLUDED.custom_protocol, handle=EXCLUDED.handle,
        state=EXCLUDED.state, status_text=EXCLUDED.status_text, status_ts=EXCLUDED.status_ts
RETURNING id`
	err := t.tx.QueryRow(ctx, q,
		p.DataRowID, p.RawContactID, p.Protocol, p.CustomProtocol, p.Handle,
		p.State, p.StatusText, nullTime(p.StatusTimestamp)).Scan(&p.ID)
	return p.ID, mapErr(err)
}

func (t *pgTx) DeletePresence(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM presence WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) PresenceByDataRow(ctx context.Context, dataRowID int64) (*store.PresenceRow, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+presenceRowCols+` FROM presence WHERE data_row_id=$1`, dataRowID)
	return scanPresence(row)
}

func (t *pgTx) PresenceByRawContact(ctx context.Context, rawContactID int64) ([]*store.PresenceRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+presenceRowCols+` FROM presence WHERE raw_contact_id=$1 ORDER BY id`, rawContactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.PresenceRow
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPresence(row pgx.Row) (*store.PresenceRow, error) {
	var (
		p  store.PresenceRow
		ts *time.Time
	)
	err := row.Scan(&p.ID, &p.DataRowID, &p.RawContactID, &p.Protocol, &p.CustomProtocol,
		&p.Handle, &p.State, &p.StatusText, &ts)
	if err != nil {
		return nil, mapErr(err)
	}
	p.StatusTimestamp = fromNullTime(ts)
	return &p, nil
}

func (t *pgTx) GetUsageStat(ctx context.Context, dataRowID int64, usageType store.UsageType) (*store.DataUsageStat, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT data_row_id, usage_type, recent, medium, old, last_used FROM data_usage_stats
WHERE data_row_id=$1 AND usage_type=$2`, dataRowID, usageType)
	return scanUsageStat(row)
}

func (t *pgTx) UpsertUsageStat(ctx context.Context, s *store.DataUsageStat) error {
	const q = `INSERT INTO data_usage_stats (data_row_id, usage_type, recent, medium, old, last_used)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (data_row_id, usage_type) DO UPDATE SET
        recent=EXCLUDED.recent, medium=EXCLUDED.medium, old=EXCLUDED.old, last_used=EXCLUDED.last_used`
	_, err := t.tx.Exec(ctx, q, s.DataRowID, s.Type, s.Recent, s.Medium, s.Old, nullTime(s.LastUsed))
	return err
}

func (t *pgTx) UsageStatsByDataRow(ctx context.Context, dataRowID int64) ([]*store.DataUsageStat, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT data_row_id, usage_type, recent, medium, old, last_used FROM data_usage_stats
WHERE data_row_id=$1 ORDER BY usage_type`, dataRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.DataUsageStat
	for rows.Next() {
		s, err := scanUsageStat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanUsageStat(row pgx.Row) (*store.DataUsageStat, error) {
	var (
		s    store.DataUsageStat
		last *time.Time
	)
	err := row.Scan(&s.DataRowID, &s.Type, &s.Recent, &s.Medium, &s.Old, &last)
	if err != nil {
		return nil, mapErr(err)
	}
	s.LastUsed = fromNullTime(last)
	return &s, nil
}
