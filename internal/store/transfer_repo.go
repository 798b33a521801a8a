package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("transfer record not found")

// TransferStatus mirrors the transfers.status column.
type TransferStatus string

// Transfer statuses persisted in transfers.status.
const (
	TransferRunning   TransferStatus = "running"
	TransferComplete  TransferStatus = "complete"
	TransferAbandoned TransferStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferRunning, TransferComplete, TransferAbandoned:
		return true
	}
	return false
}

// Transfer is one tracked operation as recorded from its progress events.
type Transfer struct {
	// ID is the progress source identifier.
	ID          string
	Resource    string
	Method      string
	ContentType string
	Status      TransferStatus
	// Progress is the last recorded cumulative byte count.
	Progress int64
	// Expected is the expected total, or -1 when unknown.
	Expected  int64
	StartedAt time.Time
	UpdatedAt time.Time
	// FinishedAt is nil while the transfer is running.
	FinishedAt *time.Time
}

// TransferRepository persists transfer history.
type TransferRepository interface {
	// StartTransfer inserts a running transfer. Starting an existing ID is a no-op.
	StartTransfer(ctx context.Context, t Transfer) error
	// RecordProgress stores the latest byte counts of a running transfer.
	RecordProgress(ctx context.Context, id string, progress, expected int64, at time.Time) error
	// CompleteTransfer marks the transfer finished with the final status and count.
	CompleteTransfer(ctx context.Context, id string, status TransferStatus, progress int64, at time.Time) error
	// GetTransfer loads one transfer or returns ErrNotFound.
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	// ListTransfers returns transfers newest first, filtered by optional status.
	ListTransfers(ctx context.Context, status *TransferStatus, limit, offset int) ([]Transfer, error)
}
