package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HubConfig controls buffering and batching for the Hub. Zero values take
// the defaults below.
type HubConfig struct {
	// BufferSize is the capacity of the event queue.
	BufferSize int
	// MaxBatchEvents flushes once this many events are pending.
	MaxBatchEvents int
	// MaxBatchWait flushes a non-empty batch after this long.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// CoalesceUpdates keeps only the newest update per source in a batch.
	// Starts and finishes are always forwarded.
	CoalesceUpdates bool
	// BaseContext is the parent of every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// HubStats are cumulative counters since the Hub started.
type HubStats struct {
	Queued    int
	Dropped   int64
	Batches   int64
	Forwarded int64
}

// Hub is a Listener that moves events off the notifying goroutine. Events are
// queued without blocking, batched, and handed to sinks from a single
// background goroutine. A full queue drops events.
type Hub struct {
	cfg         HubConfig
	sinks       []Sink
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter *rate.Limiter

	// unreported is reset each time a drop warning is logged.
	unreported atomic.Int64
	dropped    atomic.Int64
	batches    atomic.Int64
	forwarded  atomic.Int64
	closed     atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

var _ Listener = (*Hub)(nil)

// NewHub starts the batching goroutine and returns a Hub ready for events.
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		events:      make(chan Event, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropLimiter: rate.NewLimiter(rate.Every(dropLogInterval), 1),
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.run()
	return h
}

// ProgressStart enqueues e.
func (h *Hub) ProgressStart(e Event) { h.Emit(e) }

// ProgressUpdate enqueues e.
func (h *Hub) ProgressUpdate(e Event) { h.Emit(e) }

// ProgressFinish enqueues e.
func (h *Hub) ProgressFinish(e Event) { h.Emit(e) }

// Emit enqueues an event for batching. It never blocks; if the buffer is full
// the event is dropped and a rate-limited warning is logged.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	h.dropped.Add(1)
	h.unreported.Add(1)
	if h.dropLimiter.Allow() {
		h.logger.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped", h.unreported.Swap(0)),
			zap.String("kind", string(evt.Kind)),
		)
	}
}

// Stats returns the current counters. Safe on a nil Hub.
func (h *Hub) Stats() HubStats {
	if h == nil {
		return HubStats{}
	}
	return HubStats{
		Queued:    len(h.events),
		Dropped:   h.dropped.Load(),
		Batches:   h.batches.Load(),
		Forwarded: h.forwarded.Load(),
	}
}

// Close drains remaining events, flushes and closes sinks, and waits for the
// background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// batcher accumulates events and owns the flush deadline of the open batch.
type batcher struct {
	events  []Event
	limit   int
	wait    time.Duration
	timer   *time.Timer
	waiting bool
}

func newBatcher(limit int, wait time.Duration) *batcher {
	t := time.NewTimer(wait)
	t.Stop()
	return &batcher{events: make([]Event, 0, limit), limit: limit, wait: wait, timer: t}
}

// add appends evt and reports whether the batch is full.
func (b *batcher) add(evt Event) bool {
	b.events = append(b.events, evt)
	if len(b.events) >= b.limit {
		return true
	}
	if !b.waiting {
		b.timer.Reset(b.wait)
		b.waiting = true
	}
	return false
}

// take hands out the pending events and disarms the deadline.
func (b *batcher) take() []Event {
	if b.waiting {
		if !b.timer.Stop() {
			select {
			case <-b.timer.C:
			default:
			}
		}
		b.waiting = false
	}
	out := append([]Event(nil), b.events...)
	b.events = b.events[:0]
	return out
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := newBatcher(h.cfg.MaxBatchEvents, h.cfg.MaxBatchWait)
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		case <-b.timer.C:
			b.waiting = false
			h.flush(b.take())
		case <-h.stopCh:
			h.drain(b)
			h.closeSinks()
			return
		}
	}
}

// drain forwards whatever is still queued after Close.
func (h *Hub) drain(b *batcher) {
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		default:
			h.flush(b.take())
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if h.cfg.CoalesceUpdates {
		batch = coalesceUpdates(batch)
	}
	if len(batch) == 0 {
		return
	}
	h.batches.Add(1)
	h.forwarded.Add(int64(len(batch)))
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err), zap.Int("batch", len(batch)))
		}
		cancel()
	}
}

// coalesceUpdates drops an update when a later update or finish for the same
// source is in the batch, since that event carries newer cumulative bytes.
// Relative order of the survivors is kept.
func coalesceUpdates(batch []Event) []Event {
	superseded := make(map[string]bool, len(batch))
	keep := make([]bool, len(batch))
	n := 0
	for i := len(batch) - 1; i >= 0; i-- {
		evt := batch[i]
		switch evt.Kind {
		case KindUpdate:
			keep[i] = !superseded[evt.SourceID]
			superseded[evt.SourceID] = true
		case KindFinish:
			keep[i] = true
			superseded[evt.SourceID] = true
		default:
			keep[i] = true
			delete(superseded, evt.SourceID)
		}
		if keep[i] {
			n++
		}
	}
	out := make([]Event, 0, n)
	for i, evt := range batch {
		if keep[i] {
			out = append(out, evt)
		}
	}
	return out
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
