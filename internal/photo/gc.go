package photo

import (
	"context"

	"go.uber.org/zap"

	"github.com/jw6ventures/contactd/internal/metrics"
	"github.com/jw6ventures/contactd/internal/store"
)

// SweepStats summarizes one GC pass.
type SweepStats struct {
	Swept    int
	Dangling int
}

// Sweep reclaims unreferenced photo records and self-heals dangling
// references. A record is live when some photo data row or stream-item
// photo names its file id; everything else is deleted. A reference to a
// missing record is cleared on the holder, never treated as an error.
// The sweep runs in its own transaction and is idempotent.
func (s *Service) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		ids, err := tx.ListPhotoFileIDs(ctx)
		if err != nil {
			return err
		}
		stored := make(map[string]bool, len(ids))
		for _, id := range ids {
			stored[id] = true
		}

		referenced := map[string]bool{}
		photoRows, err := tx.DataRowsByKind(ctx, store.KindPhoto)
		if err != nil {
			return err
		}
		for _, row := range photoRows {
			id := row.Photo.FileID
			if id == "" {
				continue
			}
			if !stored[id] {
				row.Photo.FileID = ""
				if err := tx.UpdateDataRow(ctx, row); err != nil {
					return err
				}
				stats.Dangling++
				continue
			}
			referenced[id] = true
		}

		streamPhotos, err := tx.ListStreamItemPhotos(ctx)
		if err != nil {
			return err
		}
		for _, sp := range streamPhotos {
			id := sp.PhotoFileID
			if id == "" {
				continue
			}
			if !stored[id] {
				sp.PhotoFileID = ""
				if err := tx.UpdateStreamItemPhoto(ctx, sp); err != nil {
					return err
				}
				stats.Dangling++
				continue
			}
			referenced[id] = true
		}

		for _, id := range ids {
			if referenced[id] {
				continue
			}
			if err := tx.DeletePhotoRecord(ctx, id); err != nil {
				return err
			}
			stats.Swept++
		}
		return nil
	})
	if err != nil {
		return SweepStats{}, err
	}
	metrics.AddPhotosSwept(stats.Swept)
	metrics.AddDanglingPhotoRefs(stats.Dangling)
	if stats.Swept > 0 || stats.Dangling > 0 {
		s.logger.Info("photo gc sweep",
			zap.Int("swept", stats.Swept),
			zap.Int("dangling_refs_cleared", stats.Dangling))
	}
	return stats, nil
}
