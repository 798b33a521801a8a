package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	idgen "github.com/JakeFAU/progress-monitor/internal/id/uuid"
	"github.com/JakeFAU/progress-monitor/internal/progress"
	"github.com/JakeFAU/progress-monitor/internal/store"
)

const (
	defaultTransferLimit = 50
	maxTransferLimit     = 500
	repoTimeout          = 3 * time.Second
)

// SourceLister reports the sources currently registered with a monitor.
type SourceLister interface {
	Sources() []progress.Snapshot
}

// TransferHandler exposes read-only transfer history and live source endpoints.
type TransferHandler struct {
	repo    store.TransferRepository
	sources SourceLister
	timeout time.Duration
	logger  *zap.Logger
}

// NewTransferHandler wires the repository, monitor and logger. Either data
// source may be nil; its endpoints then answer 503.
func NewTransferHandler(repo store.TransferRepository, sources SourceLister, logger *zap.Logger) *TransferHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferHandler{
		repo:    repo,
		sources: sources,
		timeout: repoTimeout,
		logger:  logger,
	}
}

// ListSources handles GET /api/sources and returns {"sources": [...]} with
// one entry per registered source in registration order.
func (h *TransferHandler) ListSources(w http.ResponseWriter, _ *http.Request) {
	if h.sources == nil {
		writeError(w, http.StatusServiceUnavailable, "progress monitor unavailable")
		return
	}
	snaps := h.sources.Sources()
	out := make([]sourceDTO, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSourceDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// ListTransfers handles GET /api/transfers?status=&limit=&offset=. It returns
// {"transfers": [...]} on success, 400 for invalid filters, 503 when the repo
// is unavailable, or 500 if the repository call fails.
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "transfer repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultTransferLimit, maxTransferLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.TransferStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		val, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &val
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	transfers, err := h.repo.ListTransfers(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list transfers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	out := make([]transferDTO, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": out})
}

// GetTransfer handles GET /api/transfers/{transfer_id}. It returns
// {"transfer": {...}} on success, 400 for malformed IDs, 404 when the
// repository reports store.ErrNotFound, 503 if the repo is not initialized,
// or 500 otherwise.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "transfer repository unavailable")
		return
	}
	id := chi.URLParam(r, "transfer_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "transfer_id is required")
		return
	}
	if !idgen.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid transfer_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	t, err := h.repo.GetTransfer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transfer not found")
			return
		}
		h.logger.Error("get transfer failed", zap.String("transfer_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load transfer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfer": toTransferDTO(t)})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.TransferStatus, error) {
	status := store.TransferStatus(strings.ToLower(input))
	if !status.Valid() {
		return "", errors.New("invalid status")
	}
	return status, nil
}

type sourceDTO struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Method      string `json:"method"`
	ContentType string `json:"content_type,omitempty"`
	State       string `json:"state"`
	Progress    int64  `json:"progress"`
	Expected    int64  `json:"expected"`
	Threshold   int64  `json:"threshold"`
}

func toSourceDTO(s progress.Snapshot) sourceDTO {
	return sourceDTO{
		ID:          s.ID,
		Resource:    s.Resource,
		Method:      s.Method,
		ContentType: s.ContentType,
		State:       s.State.String(),
		Progress:    s.Progress,
		Expected:    s.Expected,
		Threshold:   s.Threshold,
	}
}

type transferDTO struct {
	ID          string     `json:"id"`
	Resource    string     `json:"resource"`
	Method      string     `json:"method"`
	ContentType string     `json:"content_type,omitempty"`
	Status      string     `json:"status"`
	Progress    int64      `json:"progress"`
	Expected    int64      `json:"expected"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func toTransferDTO(t store.Transfer) transferDTO {
	return transferDTO{
		ID:          t.ID,
		Resource:    t.Resource,
		Method:      t.Method,
		ContentType: t.ContentType,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Expected:    t.Expected,
		StartedAt:   t.StartedAt,
		UpdatedAt:   t.UpdatedAt,
		FinishedAt:  t.FinishedAt,
	}
}
