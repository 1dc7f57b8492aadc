package postgres

import (
	"context"
	"time"

	"github.com/jw6ventures/contactd/internal/store"
)

func (t *pgTx) InsertPhotoRecord(ctx context.Context, p *store.PhotoRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO photo_records (file_id, thumbnail, display, created_at) VALUES ($1,$2,$3,$4)`,
		p.FileID, p.Thumbnail, p.Display, p.CreatedAt)
	return err
}

func (t *pgTx) GetPhotoRecord(ctx context.Context, fileID string) (*store.PhotoRecord, error) {
	var p store.PhotoRecord
	err := t.tx.QueryRow(ctx,
		`SELECT file_id, thumbnail, display, created_at FROM photo_records WHERE file_id=$1`, fileID).
		Scan(&p.FileID, &p.Thumbnail, &p.Display, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (t *pgTx) DeletePhotoRecord(ctx context.Context, fileID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM photo_records WHERE file_id=$1`, fileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListPhotoFileIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT file_id FROM photo_records ORDER BY file_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertStreamItem(ctx context.Context, s *store.StreamItem) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO stream_items (raw_contact_id, text, ts) VALUES ($1,$2,$3) RETURNING id`,
		s.RawContactID, s.Text, nullTime(s.Timestamp)).Scan(&s.ID)
	return s.ID, mapErr(err)
}

func (t *pgTx) StreamItemsByRawContact(ctx context.Context, rawContactID int64) ([]*store.StreamItem, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, raw_contact_id, text, ts FROM stream_items WHERE raw_contact_id=$1 ORDER BY id`,
		rawContactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.StreamItem
	for rows.Next() {
		var (
			s  store.StreamItem
			ts *time.Time
		)
		if err := rows.Scan(&s.ID, &s.RawContactID, &s.Text, &ts); err != nil {
			return nil, err
		}
		s.Timestamp = fromNullTime(ts)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertStreamItemPhoto(ctx context.Context, p *store.StreamItemPhoto) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO stream_item_photos (stream_item_id, photo_file_id) VALUES ($1,$2) RETURNING id`,
		p.StreamItemID, p.PhotoFileID).Scan(&p.ID)
	return p.ID, mapErr(err)
}

func (t *pgTx) UpdateStreamItemPhoto(ctx context.Context, p *store.StreamItemPhoto) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stream_item_photos SET stream_item_id=$2, photo_file_id=$3 WHERE id=$1`,
		p.ID, p.StreamItemID, p.PhotoFileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListStreamItemPhotos(ctx context.Context) ([]*store.StreamItemPhoto, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, stream_item_id, photo_file_id FROM stream_item_photos ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.StreamItemPhoto
	for rows.Next() {
		var p store.StreamItemPhoto
		if err := rows.Scan(&p.ID, &p.StreamItemID, &p.PhotoFileID); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
