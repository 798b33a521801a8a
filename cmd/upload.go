package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/meteredio"
	"github.com/JakeFAU/progress-monitor/internal/progress"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE DEST",
		Short: "Upload a file and render its progress",
		Long: `Sends FILE to DEST. An http(s) DEST receives a PUT request; gs:// URIs and
local paths are written through the blob stores.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), e, args[0], args[1], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	return cmd
}

func runUpload(ctx context.Context, e *env, file, dest string, stdout, console io.Writer) error {
	f, err := os.Open(file) //nolint:gosec // operator supplied path
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(file))
	m := newCommandMonitor(e, console)

	var uri string
	if strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") {
		uri, err = putHTTP(ctx, e, m, f, info.Size(), contentType, dest)
	} else {
		uri, err = putBlob(ctx, m, f, info.Size(), contentType, dest, filepath.Base(file), stdout)
	}
	if err != nil {
		return err
	}
	e.logger.Info("upload complete", zap.String("file", file), zap.String("saved_to", uri))
	return nil
}

// putHTTP streams the file through a pipe so the metered side counts the
// bytes the HTTP client actually consumed.
func putHTTP(
	ctx context.Context,
	e *env,
	m *progress.Monitor,
	f *os.File,
	size int64,
	contentType, dest string,
) (string, error) {
	var body io.Reader = f
	if m.ShouldMeter(dest, http.MethodPut) {
		pr, pw := io.Pipe()
		src := m.NewSource(dest, http.MethodPut, size)
		src.SetContentType(contentType)
		mw := meteredio.NewWriter(src, pw)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := io.Copy(mw, f); err != nil {
				pw.CloseWithError(err)
			}
			_ = mw.Close()
		}()
		// Closing the reader unblocks the copier if the request fails early.
		defer func() {
			_ = pr.Close()
			<-done
		}()
		body = pr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dest, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", e.cfg.Fetch.UserAgent)

	client := &http.Client{Timeout: e.cfg.Fetch.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", dest, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is small
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload to %s: unexpected status %s", dest, resp.Status)
	}
	return dest, nil
}

func putBlob(
	ctx context.Context,
	m *progress.Monitor,
	f *os.File,
	size int64,
	contentType, dest, fallback string,
	stdout io.Writer,
) (string, error) {
	target, err := openDestination(ctx, dest, fallback, stdout)
	if err != nil {
		return "", err
	}
	defer target.close() //nolint:errcheck // best-effort client teardown

	var body io.Reader = f
	if m.ShouldMeter(dest, http.MethodPut) {
		src := m.NewSource(dest, http.MethodPut, size)
		src.SetContentType(contentType)
		r := meteredio.NewReader(src, f)
		defer r.Close() //nolint:errcheck // finishes tracking on early failure
		body = r
	}
	uri, err := target.blobs.PutObject(ctx, target.name, contentType, body)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", dest, err)
	}
	return uri, nil
}
