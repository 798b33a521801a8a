package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-monitor/internal/store"
)

func TestTransferStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTransferStore()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.StartTransfer(ctx, store.Transfer{
		ID:        "t1",
		Resource:  "https://example.com/a",
		Method:    "GET",
		Expected:  100,
		StartedAt: start,
	}))
	require.NoError(t, s.StartTransfer(ctx, store.Transfer{ID: "t1", Resource: "other", StartedAt: start}))

	got, err := s.GetTransfer(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", got.Resource, "restart keeps the original row")
	require.Equal(t, store.TransferRunning, got.Status)
	require.Equal(t, start, got.UpdatedAt)

	require.NoError(t, s.RecordProgress(ctx, "t1", 40, 100, start.Add(time.Second)))
	require.NoError(t, s.CompleteTransfer(ctx, "t1", store.TransferComplete, 100, start.Add(2*time.Second)))
	require.NoError(t, s.RecordProgress(ctx, "t1", 10, 100, start.Add(3*time.Second)))

	got, err = s.GetTransfer(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, store.TransferComplete, got.Status)
	require.Equal(t, int64(100), got.Progress)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, start.Add(2*time.Second), *got.FinishedAt)

	got.FinishedAt = nil
	again, err := s.GetTransfer(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, again.FinishedAt, "GetTransfer returns a copy")
}

func TestTransferStoreErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTransferStore()

	require.Error(t, s.StartTransfer(ctx, store.Transfer{}))
	_, err := s.GetTransfer(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.True(t, errors.Is(s.RecordProgress(ctx, "missing", 1, 1, time.Now()), store.ErrNotFound))
	require.ErrorIs(t, s.CompleteTransfer(ctx, "missing", store.TransferAbandoned, 1, time.Now()), store.ErrNotFound)

	require.NoError(t, s.StartTransfer(ctx, store.Transfer{ID: "t", StartedAt: time.Now()}))
	require.Error(t, s.CompleteTransfer(ctx, "t", store.TransferRunning, 1, time.Now()))
	require.Error(t, s.CompleteTransfer(ctx, "t", "bogus", 1, time.Now()))
}

func TestTransferStoreListOrderingAndPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTransferStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.StartTransfer(ctx, store.Transfer{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, s.CompleteTransfer(ctx, "b", store.TransferAbandoned, 0, base.Add(time.Hour)))

	all, err := s.ListTransfers(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	page, err := s.ListTransfers(ctx, nil, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, ids(page))

	running := store.TransferRunning
	filtered, err := s.ListTransfers(ctx, &running, 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "a"}, ids(filtered))

	empty, err := s.ListTransfers(ctx, nil, 10, 50)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func ids(ts []store.Transfer) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}
