package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the notification an Event was produced for.
type Kind string

// Event kinds, one per listener callback.
const (
	KindStart  Kind = "START"
	KindUpdate Kind = "UPDATE"
	KindFinish Kind = "FINISH"
)

// Event is an immutable snapshot of a source handed to listeners.
type Event struct {
	// Kind says which callback the event was produced for.
	Kind Kind
	// Source references the live source. It may be nil.
	Source *Source
	// SourceID is the source identifier at snapshot time.
	SourceID    string
	Resource    string
	Method      string
	ContentType string
	State       State
	// Progress is the cumulative byte count.
	Progress int64
	// Expected is the expected total, or UnknownTotal.
	Expected int64
	// TS is when the monitor produced the event.
	TS time.Time
}

// NewEvent builds an Event from a source reference and a snapshot of its
// fields. Values are stored as given.
func NewEvent(kind Kind, src *Source, snap Snapshot, ts time.Time) Event {
	return Event{
		Kind:        kind,
		Source:      src,
		SourceID:    snap.ID,
		Resource:    snap.Resource,
		Method:      snap.Method,
		ContentType: snap.ContentType,
		State:       snap.State,
		Progress:    snap.Progress,
		Expected:    snap.Expected,
		TS:          ts,
	}
}

// Complete reports whether the event's progress reached a known expected total.
func (e Event) Complete() bool {
	return IsComplete(e.Progress, e.Expected)
}

// Validate performs coarse validation before an event is forwarded to sinks.
func (e Event) Validate() error {
	switch e.Kind {
	case KindStart, KindUpdate, KindFinish:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.SourceID == "" {
		return errors.New("source id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Progress < 0 {
		return errors.New("progress must be >= 0")
	}
	return nil
}

// Record is the JSON wire form of an Event used by streaming and publishing
// consumers.
type Record struct {
	Kind        Kind      `json:"kind"`
	SourceID    string    `json:"source_id"`
	Resource    string    `json:"resource"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type,omitempty"`
	State       string    `json:"state"`
	Progress    int64     `json:"progress"`
	Expected    int64     `json:"expected"`
	Complete    bool      `json:"complete"`
	TS          time.Time `json:"ts"`
}

// Record converts e to its wire form.
func (e Event) Record() Record {
	return Record{
		Kind:        e.Kind,
		SourceID:    e.SourceID,
		Resource:    e.Resource,
		Method:      e.Method,
		ContentType: e.ContentType,
		State:       e.State.String(),
		Progress:    e.Progress,
		Expected:    e.Expected,
		Complete:    e.Complete(),
		TS:          e.TS,
	}
}
