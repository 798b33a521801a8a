package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-monitor/internal/progress"
	"github.com/JakeFAU/progress-monitor/internal/storage/memory"
	"github.com/JakeFAU/progress-monitor/internal/store"
)

var handlerEpoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func seededRepo(t *testing.T) (*memory.TransferStore, string, string) {
	t.Helper()
	repo := memory.NewTransferStore()
	ctx := context.Background()
	running, done := uuid.NewString(), uuid.NewString()
	require.NoError(t, repo.StartTransfer(ctx, store.Transfer{
		ID: running, Resource: "https://example.com/a", Method: "GET",
		Status: store.TransferRunning, Expected: 100, StartedAt: handlerEpoch,
	}))
	require.NoError(t, repo.StartTransfer(ctx, store.Transfer{
		ID: done, Resource: "https://example.com/b", Method: "PUT",
		Status: store.TransferRunning, Expected: 10, StartedAt: handlerEpoch.Add(time.Second),
	}))
	require.NoError(t, repo.CompleteTransfer(ctx, done, store.TransferComplete, 10, handlerEpoch.Add(2*time.Second)))
	return repo, running, done
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListTransfers(t *testing.T) {
	t.Parallel()

	repo, running, done := seededRepo(t)
	h := NewServer(Options{Transfers: repo}).Handler()

	rec := serve(h, "/api/transfers")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Transfers []transferDTO `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transfers, 2)
	require.Equal(t, done, body.Transfers[0].ID)
	require.Equal(t, running, body.Transfers[1].ID)

	rec = serve(h, "/api/transfers?status=COMPLETE&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transfers, 1)
	require.Equal(t, "complete", body.Transfers[0].Status)
	require.NotNil(t, body.Transfers[0].FinishedAt)
}

func TestListTransfersRejectsBadQuery(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{Transfers: memory.NewTransferStore()}).Handler()
	for _, target := range []string{
		"/api/transfers?status=paused",
		"/api/transfers?limit=-1",
		"/api/transfers?limit=abc",
		"/api/transfers?offset=-3",
	} {
		require.Equal(t, http.StatusBadRequest, serve(h, target).Code, target)
	}
}

func TestListTransfersRepoError(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{Transfers: failingRepo{}}).Handler()
	require.Equal(t, http.StatusInternalServerError, serve(h, "/api/transfers").Code)
}

func TestGetTransfer(t *testing.T) {
	t.Parallel()

	repo, running, _ := seededRepo(t)
	h := NewServer(Options{Transfers: repo}).Handler()

	rec := serve(h, "/api/transfers/"+running)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Transfer transferDTO `json:"transfer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, running, body.Transfer.ID)
	require.Equal(t, "running", body.Transfer.Status)
	require.Nil(t, body.Transfer.FinishedAt)

	require.Equal(t, http.StatusNotFound, serve(h, "/api/transfers/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusBadRequest, serve(h, "/api/transfers/not-a-uuid").Code)
}

func TestGetTransferRepoError(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{Transfers: failingRepo{}}).Handler()
	require.Equal(t, http.StatusInternalServerError, serve(h, "/api/transfers/"+uuid.NewString()).Code)
}

func TestHandlersWithoutBackends(t *testing.T) {
	t.Parallel()

	h := NewServer(Options{}).Handler()
	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/api/transfers").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/api/transfers/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/api/sources").Code)
}

func TestListSources(t *testing.T) {
	t.Parallel()

	m := progress.NewMonitor()
	a := m.NewSource("https://example.com/a", "GET", 100)
	b := m.NewSource("https://example.com/b", "PUT", progress.UnknownTotal)
	a.BeginTracking()
	b.BeginTracking()
	a.UpdateProgress(10, 100)
	a.UpdateProgress(40, 100)

	rec := serve(NewServer(Options{Sources: m}).Handler(), "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []sourceDTO `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 2)
	require.Equal(t, a.ID(), body.Sources[0].ID)
	require.Equal(t, int64(40), body.Sources[0].Progress)
	require.Equal(t, progress.StateUpdate.String(), body.Sources[0].State)
	require.Equal(t, "PUT", body.Sources[1].Method)
	require.Equal(t, progress.UnknownTotal, body.Sources[1].Expected)
}

type staticSources []progress.Snapshot

func (s staticSources) Sources() []progress.Snapshot { return s }

type failingRepo struct{}

var errRepo = errors.New("repo offline")

func (failingRepo) StartTransfer(context.Context, store.Transfer) error { return errRepo }

func (failingRepo) RecordProgress(context.Context, string, int64, int64, time.Time) error {
	return errRepo
}

func (failingRepo) CompleteTransfer(context.Context, string, store.TransferStatus, int64, time.Time) error {
	return errRepo
}

func (failingRepo) GetTransfer(context.Context, string) (store.Transfer, error) {
	return store.Transfer{}, errRepo
}

func (failingRepo) ListTransfers(context.Context, *store.TransferStatus, int, int) ([]store.Transfer, error) {
	return nil, errRepo
}
