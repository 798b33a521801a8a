package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/hash/sha256"
	"github.com/JakeFAU/progress-monitor/internal/meteredio"
	"github.com/JakeFAU/progress-monitor/internal/progress"
)

func newFetchCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Download a URL and render its progress",
		Long: `Downloads URL through the metered transport and draws progress from the
monitor's notifications. -o accepts a local path or directory, gs://bucket/object,
memory:// for a dry run, or - for stdout. Without -o the body goes to storage.gcs_bucket
or storage.local_dir, named after the last path segment of URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runFetch(cmd.Context(), e, args[0], output, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path, gs:// URI or -")
	return cmd
}

func newCommandMonitor(e *env, console io.Writer) *progress.Monitor {
	m := progress.NewMonitor(
		progress.WithLogger(e.logger.Named("monitor")),
		progress.WithPolicy(e.cfg.Metering.Policy()),
	)
	m.AddListener(newConsoleRenderer(console, e.cfg.Fetch.NoColor))
	return m
}

func runFetch(ctx context.Context, e *env, rawURL, output string, stdout, console io.Writer) error {
	m := newCommandMonitor(e, console)
	client := meteredio.Client(&http.Client{Timeout: e.cfg.Fetch.Timeout}, m)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.Fetch.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body is drained by the copy
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	if output == "" {
		output = e.cfg.Storage.Destination()
	}
	dest, err := openDestination(ctx, output, fileNameFromURL(rawURL), stdout)
	if err != nil {
		return err
	}
	defer dest.close() //nolint:errcheck // best-effort client teardown

	digest := sha256.New()
	body := io.TeeReader(resp.Body, digest)
	uri, err := dest.blobs.PutObject(ctx, dest.name, resp.Header.Get("Content-Type"), body)
	if err != nil {
		return fmt.Errorf("save %s: %w", rawURL, err)
	}
	fmt.Fprintf(console, "sha256 %s  %s\n", digest.Sum(), uri)
	e.logger.Info("fetch complete",
		zap.String("url", rawURL),
		zap.String("saved_to", uri),
		zap.Int64("bytes", digest.Size()),
		zap.String("sha256", digest.Sum()),
	)
	return nil
}
