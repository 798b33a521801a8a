package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/clock/system"
	idgen "github.com/JakeFAU/progress-monitor/internal/id/uuid"
	"github.com/JakeFAU/progress-monitor/internal/metering"
)

// Clock supplies event timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator assigns source identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Monitor is the registry of active sources and subscribed listeners. The
// source set and the listener list have independent locks which are never
// held together, and listeners are always called outside both of them, so a
// callback may register sources or listeners freely.
type Monitor struct {
	logger *zap.Logger
	clock  Clock
	ids    IDGenerator

	policyMu sync.RWMutex
	policy   metering.Policy

	sourcesMu sync.Mutex
	sources   []*Source

	listenersMu sync.Mutex
	listeners   []Listener
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger used when a listener panics.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the event timestamp source.
func WithClock(c Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithIDGenerator sets the source identifier generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Monitor) {
		if g != nil {
			m.ids = g
		}
	}
}

// WithPolicy sets the initial metering policy.
func WithPolicy(p metering.Policy) Option {
	return func(m *Monitor) {
		if p != nil {
			m.policy = p
		}
	}
}

// NewMonitor builds a Monitor using metering.DefaultPolicy unless overridden.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		logger: zap.NewNop(),
		clock:  system.New(),
		ids:    idgen.NewUUIDGenerator(),
		policy: metering.DefaultPolicy{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultMonitor atomic.Pointer[Monitor]

func init() {
	defaultMonitor.Store(NewMonitor())
}

// Default returns the process-wide monitor.
func Default() *Monitor {
	return defaultMonitor.Load()
}

// SetDefault replaces the process-wide monitor. nil is ignored.
func SetDefault(m *Monitor) {
	if m != nil {
		defaultMonitor.Store(m)
	}
}

// NewSource creates a source on the process-wide monitor.
func NewSource(resource, method string, expected int64) *Source {
	return Default().NewSource(resource, method, expected)
}

// NewSource creates a source bound to m. The threshold is captured from the
// current policy and later policy changes do not affect it.
func (m *Monitor) NewSource(resource, method string, expected int64) *Source {
	id, err := m.ids.NewID()
	if err != nil {
		m.logger.Warn("source id generation failed, using random id", zap.Error(err))
		id = uuid.NewString()
	}
	threshold := metering.ClampThreshold(m.Policy().UpdateThreshold())
	return newSource(m, id, resource, method, expected, threshold)
}

// Policy returns the active metering policy.
func (m *Monitor) Policy() metering.Policy {
	m.policyMu.RLock()
	defer m.policyMu.RUnlock()
	return m.policy
}

// SetMeteringPolicy replaces the policy for future sources. nil is ignored.
func (m *Monitor) SetMeteringPolicy(p metering.Policy) {
	if p == nil {
		return
	}
	m.policyMu.Lock()
	defer m.policyMu.Unlock()
	m.policy = p
}

// ShouldMeter asks the active policy whether an operation is tracked.
func (m *Monitor) ShouldMeter(resource, method string) bool {
	return m.Policy().ShouldMeter(resource, method)
}

// RegisterSource adds s to the active set and notifies ProgressStart. It is a
// no-op if s is nil or already registered.
func (m *Monitor) RegisterSource(s *Source) {
	if s == nil {
		return
	}
	m.sourcesMu.Lock()
	if m.indexLocked(s) >= 0 {
		m.sourcesMu.Unlock()
		return
	}
	m.sources = append(m.sources, s)
	m.sourcesMu.Unlock()

	m.notify(KindStart, s)
}

// UnregisterSource closes s, removes it from the active set and notifies
// ProgressFinish. It is a no-op if s is not registered.
func (m *Monitor) UnregisterSource(s *Source) {
	if s == nil {
		return
	}
	m.sourcesMu.Lock()
	i := m.indexLocked(s)
	if i < 0 {
		m.sourcesMu.Unlock()
		return
	}
	m.sources = append(m.sources[:i], m.sources[i+1:]...)
	m.sourcesMu.Unlock()

	s.Close()
	m.notify(KindFinish, s)
}

// UpdateProgress notifies ProgressUpdate for s. Stale calls for sources that
// are not registered are dropped.
func (m *Monitor) UpdateProgress(s *Source) {
	if s == nil {
		return
	}
	m.sourcesMu.Lock()
	registered := m.indexLocked(s) >= 0
	m.sourcesMu.Unlock()
	if !registered {
		return
	}
	m.notify(KindUpdate, s)
}

// Sources returns snapshots of the active sources in registration order.
func (m *Monitor) Sources() []Snapshot {
	m.sourcesMu.Lock()
	active := append([]*Source(nil), m.sources...)
	m.sourcesMu.Unlock()

	out := make([]Snapshot, 0, len(active))
	for _, s := range active {
		out = append(out, s.Snapshot())
	}
	return out
}

// AddListener subscribes l. nil is ignored. Notification order is
// subscription order.
func (m *Monitor) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener drops the first subscription equal to l.
func (m *Monitor) RemoveListener(l Listener) {
	if l == nil {
		return
	}
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for i, existing := range m.listeners {
		if sameListener(existing, l) {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Monitor) indexLocked(s *Source) int {
	for i, existing := range m.sources {
		if existing == s {
			return i
		}
	}
	return -1
}

func (m *Monitor) listenerCopy() []Listener {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	if len(m.listeners) == 0 {
		return nil
	}
	return append([]Listener(nil), m.listeners...)
}

func (m *Monitor) notify(kind Kind, s *Source) {
	listeners := m.listenerCopy()
	if len(listeners) == 0 {
		return
	}
	evt := NewEvent(kind, s, s.Snapshot(), m.clock.Now())
	for _, l := range listeners {
		m.deliver(l, evt)
	}
}

func (m *Monitor) deliver(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("progress listener panicked",
				zap.String("kind", string(evt.Kind)),
				zap.String("source_id", evt.SourceID),
				zap.String("resource", evt.Resource),
				zap.Any("panic", r),
			)
		}
	}()
	Dispatch(l, evt)
}
