package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"gcs", "gs://bucket/object", "bucket"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "404")))
	require.Equal(t, 2, testutil.CollectAndCount(m.duration, "http_request_duration_seconds"))
}

func TestNewHTTPDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTP(reg)
	require.NoError(t, err)
	_, err = NewHTTP(reg)
	require.Error(t, err)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)
	m.Observe("GET", "/x", 200, 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `http_requests_total{code="200",method="GET"} 1`))
}

func TestRegisterHub(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	hub := progress.NewHub(progress.HubConfig{MaxBatchEvents: 1})
	require.NoError(t, RegisterHub(reg, hub))
	require.Error(t, RegisterHub(reg, hub), "duplicate registration")

	hub.Emit(progress.Event{
		Kind:     progress.KindStart,
		SourceID: "0190b0a4-6a3e-7cc0-9f52-6d3f8f3a1b2c",
		TS:       time.Now(),
	})
	require.NoError(t, hub.Close(context.Background()))

	expected := `
# HELP progress_hub_batches_total Batches handed to sinks.
# TYPE progress_hub_batches_total counter
progress_hub_batches_total 1
# HELP progress_hub_forwarded_events_total Events handed to sinks after coalescing.
# TYPE progress_hub_forwarded_events_total counter
progress_hub_forwarded_events_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"progress_hub_batches_total", "progress_hub_forwarded_events_total"))
}
