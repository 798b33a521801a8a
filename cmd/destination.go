package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	gcsstorage "github.com/JakeFAU/progress-monitor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/progress-monitor/internal/storage/local"
	"github.com/JakeFAU/progress-monitor/internal/storage/memory"
	"github.com/JakeFAU/progress-monitor/internal/store"
)

// destination is a resolved output target.
type destination struct {
	blobs store.BlobStore
	name  string
	close func() error
}

// openDestination resolves dest into a blob store and object name:
//   - "-" writes to stdout
//   - memory://name keeps the object in memory (dry run)
//   - gs://bucket/object writes to Cloud Storage (object defaults to fallback)
//   - anything else is a local file path; a directory receives fallback
func openDestination(ctx context.Context, dest, fallback string, stdout io.Writer) (*destination, error) {
	noop := func() error { return nil }
	switch {
	case dest == "-":
		return &destination{blobs: writerStore{w: stdout}, name: "stdout", close: noop}, nil
	case strings.HasPrefix(dest, "memory://"):
		name := strings.TrimPrefix(dest, "memory://")
		if name == "" {
			name = fallback
		}
		return &destination{blobs: memory.NewBlobStore(), name: name, close: noop}, nil
	case strings.HasPrefix(dest, "gs://"):
		bucket, object, err := gcsstorage.ParseURI(dest)
		if err != nil {
			if !strings.HasSuffix(dest, "/") {
				return nil, err
			}
			bucket, object = strings.TrimSuffix(strings.TrimPrefix(dest, "gs://"), "/"), fallback
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: bucket})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &destination{blobs: blobs, name: object, close: client.Close}, nil
	default:
		if dest == "" {
			dest = fallback
		}
		dir, name := filepath.Split(dest)
		if info, err := os.Stat(dest); err == nil && info.IsDir() {
			dir, name = dest, fallback
		}
		if name == "" {
			name = fallback
		}
		if dir == "" {
			dir = "."
		}
		blobs, err := localstorage.New(localstorage.Config{BaseDir: dir})
		if err != nil {
			return nil, fmt.Errorf("local destination: %w", err)
		}
		return &destination{blobs: blobs, name: name, close: noop}, nil
	}
}

// fileNameFromURL picks a local name for a fetched resource.
func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

// writerStore streams objects to a plain writer.
type writerStore struct {
	w io.Writer
}

func (s writerStore) PutObject(_ context.Context, name string, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(s.w, r); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}
