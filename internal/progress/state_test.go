package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		ok      bool
	}{
		{"new connect", StateNew, TriggerConnect, StateConnected, true},
		{"new close", StateNew, TriggerClose, StateDelete, true},
		{"new update rejected", StateNew, TriggerUpdate, StateNew, false},
		{"new complete rejected", StateNew, TriggerComplete, StateNew, false},
		{"connected update", StateConnected, TriggerUpdate, StateUpdate, true},
		{"connected complete", StateConnected, TriggerComplete, StateDelete, true},
		{"connected reconnect rejected", StateConnected, TriggerConnect, StateConnected, false},
		{"update update", StateUpdate, TriggerUpdate, StateUpdate, true},
		{"update complete", StateUpdate, TriggerComplete, StateDelete, true},
		{"update close", StateUpdate, TriggerClose, StateDelete, true},
		{"delete close", StateDelete, TriggerClose, StateDelete, true},
		{"delete update rejected", StateDelete, TriggerUpdate, StateDelete, false},
		{"delete connect rejected", StateDelete, TriggerConnect, StateDelete, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Transition(tc.from, tc.trigger)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.ok, ok)
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "NEW", StateNew.String())
	require.Equal(t, "CONNECTED", StateConnected.String())
	require.Equal(t, "UPDATE", StateUpdate.String())
	require.Equal(t, "DELETE", StateDelete.String())
	require.Equal(t, "UNKNOWN", State(42).String())
}

func TestIsComplete(t *testing.T) {
	t.Parallel()

	require.True(t, IsComplete(100, 100))
	require.True(t, IsComplete(150, 100))
	require.True(t, IsComplete(5, 0))
	require.False(t, IsComplete(0, 0))
	require.False(t, IsComplete(99, 100))
	require.False(t, IsComplete(1<<20, UnknownTotal))
	require.False(t, IsComplete(10, -7))
}

func TestBucket(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), Bucket(0, 8192))
	require.Equal(t, int64(0), Bucket(8191, 8192))
	require.Equal(t, int64(1), Bucket(8192, 8192))
	require.Equal(t, int64(2), Bucket(16384, 8192))
	require.Equal(t, int64(17), Bucket(17, 0), "zero threshold clamps to one")
	require.Equal(t, int64(17), Bucket(17, -4))
	require.Equal(t, int64(-1), Bucket(-1, 8192))
}
