package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/jw6ventures/contactd/internal/store"
)

// SetRawContactPhoto stores processed photo blobs under a fresh file id
// and points the raw contact's photo row at it, all in one transaction.
// The record is therefore referenced from the moment it exists, which is
// what keeps the GC sweep safe. The previous record, if any, becomes
// unreferenced and is reclaimed by the next sweep.
func (e *Engine) SetRawContactPhoto(ctx context.Context, rawContactID int64, thumbnail, display []byte, opts WriteOptions) (string, error) {
	fileID := uuid.NewString()
	err := e.inTx(ctx, "set_raw_contact_photo", func(tx store.Tx) error {
		rc, err := tx.GetRawContact(ctx, rawContactID)
		if err != nil {
			return err
		}
		if rc.ReadOnly && !opts.CallerIsSyncAdapter {
			fileID = ""
			return nil
		}

		if err := tx.InsertPhotoRecord(ctx, &store.PhotoRecord{
			FileID:    fileID,
			Thumbnail: thumbnail,
			Display:   display,
		}); err != nil {
			return err
		}

		row, err := e.photoRowOf(ctx, tx, rawContactID)
		if err != nil {
			return err
		}
		if row == nil {
			row = &store.DataRow{
				RawContactID: rawContactID,
				Kind:         store.KindPhoto,
				Photo:        &store.Photo{},
			}
			row.Photo.FileID = fileID
			row.Photo.Thumbnail = thumbnail
			if _, err := tx.InsertDataRow(ctx, row); err != nil {
				return err
			}
		} else {
			row.Photo.FileID = fileID
			row.Photo.Thumbnail = thumbnail
			if err := tx.UpdateDataRow(ctx, row); err != nil {
				return err
			}
		}

		touchRawContact(rc, opts)
		if err := tx.UpdateRawContact(ctx, rc); err != nil {
			return err
		}
		if rc.ContactID != 0 {
			return e.recomputeContactAttrs(ctx, tx, rc.ContactID)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fileID, nil
}

// photoRowOf returns the raw contact's lowest-id photo row, or nil.
func (e *Engine) photoRowOf(ctx context.Context, tx store.Tx, rawContactID int64) (*store.DataRow, error) {
	rows, err := tx.DataRowsByRawContact(ctx, rawContactID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Kind == store.KindPhoto {
			return row, nil
		}
	}
	return nil, nil
}
