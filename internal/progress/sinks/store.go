package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/progress"
	"github.com/JakeFAU/progress-monitor/internal/store"
)

// StoreSink records transfer history via a store.TransferRepository. Events
// are collapsed per source within a batch so a transfer costs at most one
// start, one progress write and one completion per flush.
type StoreSink struct {
	repo   store.TransferRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.TransferRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type sourceBatch struct {
	start  *progress.Event
	update *progress.Event
	finish *progress.Event
}

// Consume writes the collapsed batch in order of first appearance and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	order := make([]string, 0, len(batch))
	grouped := make(map[string]*sourceBatch, len(batch))
	for i := range batch {
		evt := &batch[i]
		g := grouped[evt.SourceID]
		if g == nil {
			g = &sourceBatch{}
			grouped[evt.SourceID] = g
			order = append(order, evt.SourceID)
		}
		switch evt.Kind {
		case progress.KindStart:
			if g.start == nil {
				g.start = evt
			}
		case progress.KindUpdate:
			g.update = evt
		case progress.KindFinish:
			g.finish = evt
		}
	}

	for _, id := range order {
		if err := s.apply(ctx, grouped[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, g *sourceBatch) error {
	if g.start != nil {
		if err := s.repo.StartTransfer(ctx, transferFromEvent(*g.start)); err != nil {
			return fmt.Errorf("start transfer: %w", err)
		}
	}
	switch {
	case g.finish != nil:
		return s.complete(ctx, *g.finish)
	case g.update != nil:
		return s.record(ctx, *g.update)
	}
	return nil
}

func (s *StoreSink) record(ctx context.Context, evt progress.Event) error {
	err := s.repo.RecordProgress(ctx, evt.SourceID, evt.Progress, evt.Expected, evt.TS)
	if errors.Is(err, store.ErrNotFound) {
		err = s.backfill(ctx, evt, func() error {
			return s.repo.RecordProgress(ctx, evt.SourceID, evt.Progress, evt.Expected, evt.TS)
		})
	}
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event) error {
	status := store.TransferAbandoned
	if evt.Complete() {
		status = store.TransferComplete
	}
	err := s.repo.CompleteTransfer(ctx, evt.SourceID, status, evt.Progress, evt.TS)
	if errors.Is(err, store.ErrNotFound) {
		err = s.backfill(ctx, evt, func() error {
			return s.repo.CompleteTransfer(ctx, evt.SourceID, status, evt.Progress, evt.TS)
		})
	}
	if err != nil {
		return fmt.Errorf("complete transfer: %w", err)
	}
	return nil
}

// backfill inserts a row for a transfer whose start event never reached the
// sink, then retries the write.
func (s *StoreSink) backfill(ctx context.Context, evt progress.Event, retry func() error) error {
	s.logger.Debug("backfilling transfer with missing start", zap.String("source_id", evt.SourceID))
	if err := s.repo.StartTransfer(ctx, transferFromEvent(evt)); err != nil {
		return err //nolint:wrapcheck
	}
	return retry()
}

// Close implements progress.Sink; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func transferFromEvent(evt progress.Event) store.Transfer {
	return store.Transfer{
		ID:          evt.SourceID,
		Resource:    evt.Resource,
		Method:      evt.Method,
		ContentType: evt.ContentType,
		Status:      store.TransferRunning,
		Progress:    evt.Progress,
		Expected:    evt.Expected,
		StartedAt:   evt.TS,
		UpdatedAt:   evt.TS,
	}
}
