package progress

import "sync"

// Source is the progress state of one in-flight operation. It is owned by the
// operation that created it; a single goroutine is expected to drive
// UpdateProgress. Reads and snapshots are safe from any goroutine.
type Source struct {
	monitor   *Monitor
	id        string
	resource  string
	method    string
	threshold int64

	mu           sync.Mutex
	contentType  string
	progress     int64
	lastProgress int64
	expected     int64
	state        State
	connected    bool
}

// Snapshot is an immutable copy of a Source's observable fields.
type Snapshot struct {
	ID           string
	Resource     string
	Method       string
	ContentType  string
	State        State
	Progress     int64
	LastProgress int64
	Expected     int64
	Threshold    int64
	Connected    bool
}

func newSource(m *Monitor, id, resource, method string, expected, threshold int64) *Source {
	return &Source{
		monitor:   m,
		id:        id,
		resource:  resource,
		method:    method,
		threshold: threshold,
		expected:  expected,
		state:     StateNew,
	}
}

// ID returns the identifier assigned at construction.
func (s *Source) ID() string { return s.id }

// Resource returns the tracked resource, usually a URL.
func (s *Source) Resource() string { return s.resource }

// Method returns the operation method, e.g. GET.
func (s *Source) Method() string { return s.method }

// Threshold returns the bucket size captured from the policy at construction.
func (s *Source) Threshold() int64 { return s.threshold }

// ContentType returns the content type label.
func (s *Source) ContentType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentType
}

// SetContentType updates the content type label. It is ignored once closed.
func (s *Source) SetContentType(ct string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDelete {
		return
	}
	s.contentType = ct
}

// Progress returns the bytes transferred so far.
func (s *Source) Progress() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Expected returns the expected total, or UnknownTotal.
func (s *Source) Expected() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expected
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected returns the previous connected flag and latches it. The first
// call moves a NEW source to CONNECTED. A closed source is left untouched.
func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Source) connectLocked() bool {
	was := s.connected
	if was || s.state == StateDelete {
		return was
	}
	s.connected = true
	s.state, _ = Transition(s.state, TriggerConnect)
	return false
}

// UpdateProgress records the latest cumulative byte count and expected total.
// The monitor is asked to notify only when progress lands in a different
// threshold bucket than the previous observation. Reaching a known expected
// total closes the source. Calls after close are ignored.
func (s *Source) UpdateProgress(latest, expected int64) {
	s.mu.Lock()
	if s.state == StateDelete {
		s.mu.Unlock()
		return
	}
	s.lastProgress = s.progress
	s.progress = latest
	s.expected = expected
	if s.connectLocked() {
		s.state, _ = Transition(s.state, TriggerUpdate)
	}
	due := Bucket(s.lastProgress, s.threshold) != Bucket(s.progress, s.threshold)
	complete := IsComplete(s.progress, s.expected)
	s.mu.Unlock()

	if due && s.monitor != nil {
		s.monitor.UpdateProgress(s)
	}
	if complete {
		s.complete()
	}
}

func (s *Source) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, _ = Transition(s.state, TriggerComplete)
}

// Close moves the source to DELETE. Repeated calls are harmless.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, _ = Transition(s.state, TriggerClose)
}

// Closed reports whether the source reached DELETE.
func (s *Source) Closed() bool {
	return s.State() == StateDelete
}

// BeginTracking registers the source with its monitor.
func (s *Source) BeginTracking() {
	if s.monitor != nil {
		s.monitor.RegisterSource(s)
	}
}

// FinishTracking unregisters the source from its monitor, closing it.
func (s *Source) FinishTracking() {
	if s.monitor != nil {
		s.monitor.UnregisterSource(s)
	}
}

// Snapshot copies the current field values.
func (s *Source) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		Resource:     s.resource,
		Method:       s.method,
		ContentType:  s.contentType,
		State:        s.state,
		Progress:     s.progress,
		LastProgress: s.lastProgress,
		Expected:     s.expected,
		Threshold:    s.threshold,
		Connected:    s.connected,
	}
}
