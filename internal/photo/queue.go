package photo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jw6ventures/contactd/internal/engine"
	"github.com/jw6ventures/contactd/internal/store"
)

// ErrQueueFull is returned when the encode queue cannot accept more
// work; callers fall back to the synchronous path or retry.
var ErrQueueFull = errors.New("photo encode queue full")

const (
	defaultQueueDepth   = 64
	defaultQueueWorkers = 2
)

type encodeTask struct {
	rawContactID int64
	data         []byte
	opts         engine.WriteOptions
}

// Queue encodes photos off the request path. The target raw contact is
// re-validated inside the commit transaction, so a row deleted while its
// photo was being encoded is simply skipped.
type Queue struct {
	svc     *Service
	tasks   chan encodeTask
	workers int
	logger  *zap.Logger
}

func NewQueue(svc *Service, depth, workers int) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	return &Queue{
		svc:     svc,
		tasks:   make(chan encodeTask, depth),
		workers: workers,
		logger:  svc.logger,
	}
}

// Enqueue submits photo bytes for background processing. It never
// blocks; a full queue returns ErrQueueFull.
func (q *Queue) Enqueue(rawContactID int64, data []byte, opts engine.WriteOptions) error {
	select {
	case q.tasks <- encodeTask{rawContactID: rawContactID, data: data, opts: opts}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case task := <-q.tasks:
					q.process(ctx, task)
				}
			}
		})
	}
	return g.Wait()
}

func (q *Queue) process(ctx context.Context, task encodeTask) {
	_, err := q.svc.AttachToRawContact(ctx, task.rawContactID, task.data, task.opts)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		// Deleted while the encode was in flight.
		q.logger.Debug("dropping photo for deleted raw contact",
			zap.Int64("raw_contact_id", task.rawContactID))
	default:
		q.logger.Warn("background photo encode failed",
			zap.Int64("raw_contact_id", task.rawContactID),
			zap.Error(err))
	}
}
