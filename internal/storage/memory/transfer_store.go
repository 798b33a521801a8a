package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/progress-monitor/internal/store"
)

// TransferStore is an in-memory store.TransferRepository for development and
// tests. History is lost on restart.
type TransferStore struct {
	mu        sync.RWMutex
	transfers map[string]store.Transfer
}

var _ store.TransferRepository = (*TransferStore)(nil)

// NewTransferStore constructs an empty TransferStore.
func NewTransferStore() *TransferStore {
	return &TransferStore{transfers: make(map[string]store.Transfer)}
}

// StartTransfer records a running transfer. Existing IDs are left untouched.
func (s *TransferStore) StartTransfer(_ context.Context, t store.Transfer) error {
	if t.ID == "" {
		return fmt.Errorf("transfer id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[t.ID]; exists {
		return nil
	}
	t.Status = store.TransferRunning
	t.FinishedAt = nil
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.StartedAt
	}
	s.transfers[t.ID] = t
	return nil
}

// RecordProgress updates the counters of a running transfer.
func (s *TransferStore) RecordProgress(_ context.Context, id string, progress, expected int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return fmt.Errorf("record progress %s: %w", id, store.ErrNotFound)
	}
	if t.Status != store.TransferRunning {
		return nil
	}
	t.Progress = progress
	t.Expected = expected
	t.UpdatedAt = at
	s.transfers[id] = t
	return nil
}

// CompleteTransfer marks a transfer finished.
func (s *TransferStore) CompleteTransfer(
	_ context.Context,
	id string,
	status store.TransferStatus,
	progress int64,
	at time.Time,
) error {
	if status == store.TransferRunning || !status.Valid() {
		return fmt.Errorf("invalid final status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return fmt.Errorf("complete transfer %s: %w", id, store.ErrNotFound)
	}
	t.Status = status
	t.Progress = progress
	t.UpdatedAt = at
	finished := at
	t.FinishedAt = &finished
	s.transfers[id] = t
	return nil
}

// GetTransfer fetches a transfer by ID.
func (s *TransferStore) GetTransfer(_ context.Context, id string) (store.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return store.Transfer{}, store.ErrNotFound
	}
	return copyTransfer(t), nil
}

// ListTransfers returns transfers newest first.
func (s *TransferStore) ListTransfers(
	_ context.Context,
	status *store.TransferStatus,
	limit,
	offset int,
) ([]store.Transfer, error) {
	s.mu.RLock()
	out := make([]store.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, copyTransfer(t))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []store.Transfer{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func copyTransfer(t store.Transfer) store.Transfer {
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		t.FinishedAt = &finished
	}
	return t
}
