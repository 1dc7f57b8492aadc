package postgres

import (
	"context"

	"github.com/jw6ventures/contactd/internal/store"
)

func (t *pgTx) UpsertAggregationException(ctx context.Context, e *store.AggregationException) error {
	e.Canonicalize()
	const q = `INSERT INTO aggregation_exceptions (raw_contact_id1, raw_contact_id2, type)
VALUES ($1,$2,$3)
ON CONFLICT (raw_contact_id1, raw_contact_id2) DO UPDATE SET type=EXCLUDED.type`
	_, err := t.tx.Exec(ctx, q, e.RawContactID1, e.RawContactID2, e.Type)
	return err
}

func (t *pgTx) DeleteAggregationException(ctx context.Context, rawContactID1, rawContactID2 int64) error {
	if rawContactID1 > rawContactID2 {
		rawContactID1, rawContactID2 = rawContactID2, rawContactID1
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM aggregation_exceptions WHERE raw_contact_id1=$1 AND raw_contact_id2=$2`,
		rawContactID1, rawContactID2)
	return err
}

func (t *pgTx) AggregationExceptionsFor(ctx context.Context, rawContactID int64) ([]*store.AggregationException, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT raw_contact_id1, raw_contact_id2, type FROM aggregation_exceptions
WHERE raw_contact_id1=$1 OR raw_contact_id2=$1
ORDER BY raw_contact_id1, raw_contact_id2`, rawContactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.AggregationException
	for rows.Next() {
		var e store.AggregationException
		if err := rows.Scan(&e.RawContactID1, &e.RawContactID2, &e.Type); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (t *pgTx) ReplacePhoneLookup(ctx context.Context, dataRowID int64, entries []store.PhoneLookupEntry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM phone_lookup WHERE data_row_id=$1`, dataRowID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO phone_lookup (data_row_id, raw_contact_id, key, min_match) VALUES ($1,$2,$3,$4)`,
			e.DataRowID, e.RawContactID, e.Key, e.MinMatch); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) PhoneLookup(ctx context.Context, key string) ([]store.PhoneLookupEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT data_row_id, raw_contact_id, key, min_match FROM phone_lookup
WHERE key=$1 ORDER BY data_row_id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.PhoneLookupEntry
	for rows.Next() {
		var e store.PhoneLookupEntry
		if err := rows.Scan(&e.DataRowID, &e.RawContactID, &e.Key, &e.MinMatch); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) ReplaceEmailLookup(ctx context.Context, dataRowID int64, entries []store.EmailLookupEntry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM email_lookup WHERE data_row_id=$1`, dataRowID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO email_lookup (data_row_id, raw_contact_id, address) VALUES ($1,$2,$3)`,
			e.DataRowID, e.RawContactID, e.Address); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) EmailLookup(ctx context.Context, address string) ([]store.EmailLookupEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT data_row_id, raw_contact_id, address FROM email_lookup
WHERE address=$1 ORDER BY data_row_id`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.EmailLookupEntry
	for rows.Next() {
		var e store.EmailLookupEntry
		if err := rows.Scan(&e.DataRowID, &e.RawContactID, &e.Address); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) ReplaceNameLookup(ctx context.Context, rawContactID int64, entries []store.NameLookupEntry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM name_lookup WHERE raw_contact_id=$1`, rawContactID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO name_lookup (raw_contact_id, data_row_id, key) VALUES ($1,$2,$3)`,
			e.RawContactID, e.DataRowID, e.Key); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) NameLookup(ctx context.Context, key string) ([]store.NameLookupEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT raw_contact_id, data_row_id, key FROM name_lookup
WHERE key=$1 ORDER BY raw_contact_id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.NameLookupEntry
	for rows.Next() {
		var e store.NameLookupEntry
		if err := rows.Scan(&e.RawContactID, &e.DataRowID, &e.Key); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
