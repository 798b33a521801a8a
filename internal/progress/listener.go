package progress

import "reflect"

// Listener receives source lifecycle notifications. Callbacks run
// synchronously on the goroutine that triggered them, outside any monitor lock.
type Listener interface {
	ProgressStart(Event)
	ProgressUpdate(Event)
	ProgressFinish(Event)
}

// ListenerFuncs adapts optional closures to the Listener interface.
type ListenerFuncs struct {
	OnStart  func(Event)
	OnUpdate func(Event)
	OnFinish func(Event)
}

// ProgressStart calls OnStart if set.
func (l *ListenerFuncs) ProgressStart(e Event) {
	if l != nil && l.OnStart != nil {
		l.OnStart(e)
	}
}

// ProgressUpdate calls OnUpdate if set.
func (l *ListenerFuncs) ProgressUpdate(e Event) {
	if l != nil && l.OnUpdate != nil {
		l.OnUpdate(e)
	}
}

// ProgressFinish calls OnFinish if set.
func (l *ListenerFuncs) ProgressFinish(e Event) {
	if l != nil && l.OnFinish != nil {
		l.OnFinish(e)
	}
}

// Dispatch routes e to the callback matching its Kind.
func Dispatch(l Listener, e Event) {
	switch e.Kind {
	case KindStart:
		l.ProgressStart(e)
	case KindUpdate:
		l.ProgressUpdate(e)
	case KindFinish:
		l.ProgressFinish(e)
	}
}

// sameListener compares listeners without panicking on uncomparable types.
func sameListener(a, b Listener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
