package meteredio

import (
	"io"
	"sync"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// Writer reports bytes written through it to a progress source, for uploads
// and copies where the consumer side is the one being measured.
type Writer struct {
	w        io.Writer
	src      *progress.Source
	expected int64

	mu      sync.Mutex
	written int64
	once    sync.Once
}

// NewWriter starts tracking src and wraps w.
func NewWriter(src *progress.Source, w io.Writer) *Writer {
	mw := &Writer{w: w, src: src, expected: src.Expected()}
	src.BeginTracking()
	src.UpdateProgress(0, mw.expected)
	return mw
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.mu.Lock()
		w.written += int64(n)
		total := w.written
		w.mu.Unlock()
		w.src.UpdateProgress(total, w.expected)
	}
	return n, err //nolint:wrapcheck
}

// Close finishes tracking. A known total that was never reached leaves the
// transfer incomplete. The wrapped writer is closed if it is an io.Closer.
func (w *Writer) Close() error {
	var err error
	if c, ok := w.w.(io.Closer); ok {
		err = c.Close()
	}
	w.once.Do(func() {
		if w.expected < 0 {
			w.mu.Lock()
			total := w.written
			w.mu.Unlock()
			w.src.UpdateProgress(total, total)
		}
		w.src.FinishTracking()
	})
	return err //nolint:wrapcheck
}

// BytesWritten returns the cumulative count.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
