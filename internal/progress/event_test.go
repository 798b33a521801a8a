package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventStoresValuesAsGiven(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		ID:          "abc",
		Resource:    "https://example.com/x",
		Method:      "GET",
		ContentType: "text/html",
		State:       StateUpdate,
		Progress:    512,
		Expected:    UnknownTotal,
	}
	ts := time.Unix(1700000000, 0).UTC()
	evt := NewEvent(KindUpdate, nil, snap, ts)

	require.Nil(t, evt.Source)
	require.Equal(t, Event{
		Kind:        KindUpdate,
		SourceID:    "abc",
		Resource:    "https://example.com/x",
		Method:      "GET",
		ContentType: "text/html",
		State:       StateUpdate,
		Progress:    512,
		Expected:    UnknownTotal,
		TS:          ts,
	}, evt)
	require.False(t, evt.Complete())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{Kind: KindStart, SourceID: "id", TS: time.Now()}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Event){
		"kind":      func(e *Event) { e.Kind = "BOGUS" },
		"source id": func(e *Event) { e.SourceID = "" },
		"timestamp": func(e *Event) { e.TS = time.Time{} },
		"progress":  func(e *Event) { e.Progress = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			evt := valid
			mutate(&evt)
			require.Error(t, evt.Validate())
		})
	}
}

func TestDispatchRoutesByKind(t *testing.T) {
	t.Parallel()

	var got []string
	l := &ListenerFuncs{
		OnStart:  func(Event) { got = append(got, "start") },
		OnUpdate: func(Event) { got = append(got, "update") },
		OnFinish: func(Event) { got = append(got, "finish") },
	}
	for _, k := range []Kind{KindFinish, KindStart, "OTHER", KindUpdate} {
		Dispatch(l, Event{Kind: k})
	}
	require.Equal(t, []string{"finish", "start", "update"}, got)

	var empty *ListenerFuncs
	require.NotPanics(t, func() { Dispatch(empty, Event{Kind: KindStart}) })
	require.NotPanics(t, func() { Dispatch(&ListenerFuncs{}, Event{Kind: KindUpdate}) })
}

type valueListener struct{ fn func() }

func (valueListener) ProgressStart(Event)  {}
func (valueListener) ProgressUpdate(Event) {}
func (valueListener) ProgressFinish(Event) {}

func TestSameListenerHandlesUncomparable(t *testing.T) {
	t.Parallel()

	a := valueListener{fn: func() {}}
	require.False(t, sameListener(a, a))

	r := &recorder{}
	require.True(t, sameListener(r, r))
	require.False(t, sameListener(r, &recorder{}))

	m := NewMonitor()
	m.AddListener(a)
	require.NotPanics(t, func() { m.RemoveListener(a) })
}

func TestEventRecord(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0).UTC()
	rec := Event{
		Kind:     KindFinish,
		SourceID: "id",
		Resource: "https://example.com",
		Method:   "GET",
		State:    StateDelete,
		Progress: 10,
		Expected: 10,
		TS:       ts,
	}.Record()
	require.Equal(t, "DELETE", rec.State)
	require.True(t, rec.Complete)
	require.Equal(t, KindFinish, rec.Kind)
	require.Equal(t, ts, rec.TS)
}
