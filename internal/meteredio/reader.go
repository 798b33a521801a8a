package meteredio

import (
	"errors"
	"io"
	"sync"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// Reader reports bytes read through it to a progress source. Tracking ends
// exactly once, at EOF or Close, whichever comes first.
type Reader struct {
	rc       io.ReadCloser
	src      *progress.Source
	expected int64

	mu   sync.Mutex
	read int64
	once sync.Once
}

// NewReader starts tracking src and wraps rc. The source is registered and
// observes an initial zero count so listeners see the stream as connected.
func NewReader(src *progress.Source, rc io.ReadCloser) *Reader {
	r := &Reader{rc: rc, src: src, expected: src.Expected()}
	src.BeginTracking()
	src.UpdateProgress(0, r.expected)
	return r
}

// Source returns the tracked source.
func (r *Reader) Source() *progress.Source { return r.src }

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.mu.Lock()
	r.read += int64(n)
	total := r.read
	r.mu.Unlock()
	if n > 0 {
		r.src.UpdateProgress(total, r.expected)
	}
	if errors.Is(err, io.EOF) {
		if r.expected < 0 {
			// The stream ended cleanly, so the total is now known.
			r.src.UpdateProgress(total, total)
		}
		r.finish()
	}
	return n, err //nolint:wrapcheck
}

// Close closes the underlying stream and finishes tracking.
func (r *Reader) Close() error {
	err := r.rc.Close()
	r.finish()
	return err //nolint:wrapcheck
}

// BytesRead returns the cumulative count.
func (r *Reader) BytesRead() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read
}

func (r *Reader) finish() {
	r.once.Do(r.src.FinishTracking)
}
