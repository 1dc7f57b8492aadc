package photo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/engine"
	"github.com/jw6ventures/contactd/internal/store"
)

// Resolution selects which encoding of a stored photo to read.
type Resolution int

const (
	Thumbnail Resolution = iota
	Display
)

// Service processes photo bytes and manages their lifecycle in the
// content store.
type Service struct {
	store  store.Store
	engine *engine.Engine
	proc   *Processor
	logger *zap.Logger
}

func NewService(s store.Store, eng *engine.Engine, proc *Processor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if proc == nil {
		proc = NewProcessor(0, 0)
	}
	return &Service{store: s, engine: eng, proc: proc, logger: logger}
}

// AttachToRawContact processes raw photo bytes and sets them as the raw
// contact's photo. Encoding happens before the transaction opens; the
// record insert and the row reference commit together.
func (s *Service) AttachToRawContact(ctx context.Context, rawContactID int64, data []byte, opts engine.WriteOptions) (string, error) {
	thumbnail, display, err := s.proc.Process(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	return s.engine.SetRawContactPhoto(ctx, rawContactID, thumbnail, display, opts)
}

// AttachToStreamItem processes photo bytes and appends them to a stream
// item, again inserting the record and its reference in one transaction.
func (s *Service) AttachToStreamItem(ctx context.Context, streamItemID int64, data []byte) (string, error) {
	thumbnail, display, err := s.proc.Process(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}
	rec := &store.PhotoRecord{Thumbnail: thumbnail, Display: display}
	err = store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		rec.FileID = newFileID()
		if err := tx.InsertPhotoRecord(ctx, rec); err != nil {
			return err
		}
		_, err := tx.InsertStreamItemPhoto(ctx, &store.StreamItemPhoto{
			StreamItemID: streamItemID,
			PhotoFileID:  rec.FileID,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return rec.FileID, nil
}

func newFileID() string {
	return uuid.NewString()
}

// Photo reads one encoding of a stored photo by file id.
func (s *Service) Photo(ctx context.Context, fileID string, res Resolution) ([]byte, error) {
	var blob []byte
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		rec, err := tx.GetPhotoRecord(ctx, fileID)
		if err != nil {
			return err
		}
		if res == Display {
			blob = rec.Display
		} else {
			blob = rec.Thumbnail
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}
