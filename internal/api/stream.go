package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

const (
	// Time allowed to write a message to the peer.
	streamWriteWait = 10 * time.Second
	// Per-subscriber queue; a subscriber that falls this far behind is dropped.
	streamQueueSize = 256
)

// EventStream is a progress.Listener that relays events to websocket
// subscribers as JSON records. Sends never block the monitor.
type EventStream struct {
	logger         *zap.Logger
	originPatterns []string

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	dropped atomic.Int64
}

type subscriber struct {
	send   chan progress.Record
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

var _ progress.Listener = (*EventStream)(nil)

// NewEventStream builds a stream. originPatterns are forwarded to the
// websocket handshake; empty only admits same-origin clients.
func NewEventStream(logger *zap.Logger, originPatterns ...string) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStream{
		logger:         logger,
		originPatterns: originPatterns,
		subs:           make(map[*subscriber]struct{}),
	}
}

// ProgressStart relays a start event.
func (s *EventStream) ProgressStart(e progress.Event) { s.publish(e) }

// ProgressUpdate relays an update event.
func (s *EventStream) ProgressUpdate(e progress.Event) { s.publish(e) }

// ProgressFinish relays a finish event.
func (s *EventStream) ProgressFinish(e progress.Event) { s.publish(e) }

// Subscribers returns the number of connected clients.
func (s *EventStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped returns how many subscribers were cut off for falling behind.
func (s *EventStream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *EventStream) publish(e progress.Event) {
	rec := e.Record()
	var slow []*subscriber

	s.mu.Lock()
	for sub := range s.subs {
		select {
		case sub.send <- rec:
		default:
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		delete(s.subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range slow {
		s.dropped.Add(1)
		sub.close()
	}
}

func (s *EventStream) subscribe() *subscriber {
	sub := &subscriber{
		send:   make(chan progress.Record, streamQueueSize),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *EventStream) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.close()
}

// ServeHTTP handles GET /api/events by upgrading to a websocket and writing
// one JSON record per message until the client leaves.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort teardown

	// Clients never send data; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := s.subscribe()
	defer s.unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.closed:
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case rec := <-sub.send:
			if err := s.write(ctx, conn, rec); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					s.logger.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (s *EventStream) write(ctx context.Context, conn *websocket.Conn, rec progress.Record) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()
	return wsjson.Write(ctx, conn, rec)
}
