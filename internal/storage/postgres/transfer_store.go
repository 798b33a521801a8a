// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/progress-monitor/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "transfers"

// Config controls the Postgres connection pool used for transfer rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool used by TransferStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// TransferStore implements store.TransferRepository on Postgres.
type TransferStore struct {
	pool  Pool
	table string
}

var _ store.TransferRepository = (*TransferStore)(nil)

// NewTransferStore connects a pool using cfg.
func NewTransferStore(ctx context.Context, cfg Config) (*TransferStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewTransferStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewTransferStoreWithPool constructs a store from an existing pool.
func NewTransferStoreWithPool(pool Pool, table string) (*TransferStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TransferStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool.
func (s *TransferStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity for readiness probes.
func (s *TransferStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the transfers table and its listing index if missing.
func (s *TransferStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           TEXT PRIMARY KEY,
	resource     TEXT NOT NULL,
	method       TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	progress     BIGINT NOT NULL DEFAULT 0,
	expected     BIGINT NOT NULL DEFAULT -1,
	started_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %[1]s_status_started_idx ON %[1]s (status, started_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure transfers schema: %w", err)
	}
	return nil
}

// StartTransfer inserts a running row; an existing ID is left untouched.
func (s *TransferStore) StartTransfer(ctx context.Context, t store.Transfer) error {
	if t.ID == "" {
		return fmt.Errorf("transfer id is required")
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = t.StartedAt
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, resource, method, content_type, status, progress, expected, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`, s.table)
	_, err := s.pool.Exec(ctx, query,
		t.ID,
		t.Resource,
		t.Method,
		t.ContentType,
		string(store.TransferRunning),
		t.Progress,
		t.Expected,
		t.StartedAt,
		updated,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// RecordProgress stores the latest counters of a running transfer. Finished
// transfers are left untouched.
func (s *TransferStore) RecordProgress(ctx context.Context, id string, progress, expected int64, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s SET progress = $1, expected = $2, updated_at = $3
WHERE id = $4 AND status = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, progress, expected, at, id, string(store.TransferRunning))
	if err != nil {
		return fmt.Errorf("update transfer progress: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.table), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check transfer: %w", err)
	}
	if !exists {
		return fmt.Errorf("record progress %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CompleteTransfer marks the row finished.
func (s *TransferStore) CompleteTransfer(
	ctx context.Context,
	id string,
	status store.TransferStatus,
	progress int64,
	at time.Time,
) error {
	if status == store.TransferRunning || !status.Valid() {
		return fmt.Errorf("invalid final status %q", status)
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $1, progress = $2, updated_at = $3, finished_at = $3
WHERE id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(status), progress, at, id)
	if err != nil {
		return fmt.Errorf("complete transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete transfer %s: %w", id, store.ErrNotFound)
	}
	return nil
}

const selectColumns = `id, resource, method, content_type, status, progress, expected, started_at, updated_at, finished_at`

// GetTransfer loads a single transfer.
func (s *TransferStore) GetTransfer(ctx context.Context, id string) (store.Transfer, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	t, err := scanTransfer(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Transfer{}, store.ErrNotFound
		}
		return store.Transfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns transfers newest first with optional status filtering.
func (s *TransferStore) ListTransfers(
	ctx context.Context,
	status *store.TransferStatus,
	limit,
	offset int,
) ([]store.Transfer, error) {
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2 OFFSET $3`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	out := []store.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

func scanTransfer(row pgx.Row) (store.Transfer, error) {
	var (
		t        store.Transfer
		status   string
		finished *time.Time
	)
	if err := row.Scan(
		&t.ID,
		&t.Resource,
		&t.Method,
		&t.ContentType,
		&status,
		&t.Progress,
		&t.Expected,
		&t.StartedAt,
		&t.UpdatedAt,
		&finished,
	); err != nil {
		return store.Transfer{}, err //nolint:wrapcheck
	}
	t.Status = store.TransferStatus(status)
	t.FinishedAt = finished
	return t, nil
}
