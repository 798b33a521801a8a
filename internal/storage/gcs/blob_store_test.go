package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
		name string
		path string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		name = r.URL.Query().Get("name")
		path = r.URL.Path
		mu.Unlock()
		fmt.Fprintln(w, `{"bucket":"downloads","name":"models/weights.bin"}`)
	}))

	s, err := New(client, Config{Bucket: "downloads"})
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "/models/weights.bin", "application/octet-stream", strings.NewReader("payload-bytes"))
	require.NoError(t, err)
	require.Equal(t, "gs://downloads/models/weights.bin", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, body, "payload-bytes")
	require.Equal(t, "models/weights.bin", name)
	require.Contains(t, path, "/b/downloads/o")
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	s, err := New(client, Config{Bucket: "downloads"})
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "x", "", strings.NewReader("data"))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)

	s, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "  ", "", strings.NewReader(""))
	require.Error(t, err)
}

func TestParseURI(t *testing.T) {
	t.Parallel()

	bucket, object, err := ParseURI("gs://my-bucket/path/to/file.tar")
	require.NoError(t, err)
	require.Equal(t, "my-bucket", bucket)
	require.Equal(t, "path/to/file.tar", object)

	for _, bad := range []string{"s3://b/o", "gs://bucket", "gs:///obj", "/local/path"} {
		_, _, err := ParseURI(bad)
		require.Error(t, err, bad)
	}
}
