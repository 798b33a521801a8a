package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

const defaultBarWidth = 30

// consoleRenderer draws progress events for a single transfer. On a terminal
// it redraws one line in place; otherwise it prints one line per event.
type consoleRenderer struct {
	out         io.Writer
	interactive bool
	barWidth    int

	start *color.Color
	ok    *color.Color
	fail  *color.Color

	mu sync.Mutex
}

var _ progress.Listener = (*consoleRenderer)(nil)

func newConsoleRenderer(out io.Writer, noColor bool) *consoleRenderer {
	r := &consoleRenderer{
		out:      out,
		barWidth: defaultBarWidth,
		start:    color.New(color.FgCyan),
		ok:       color.New(color.FgGreen, color.Bold),
		fail:     color.New(color.FgRed, color.Bold),
	}
	if f, isFile := out.(*os.File); isFile && term.IsTerminal(int(f.Fd())) {
		r.interactive = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 60 {
			r.barWidth = min(w-50, 60)
		}
	}
	useColor := r.interactive && !noColor
	for _, c := range []*color.Color{r.start, r.ok, r.fail} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *consoleRenderer) ProgressStart(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := "unknown size"
	if e.Expected >= 0 {
		size = formatBytes(e.Expected)
	}
	r.start.Fprintf(r.out, "%s %s (%s)\n", e.Method, e.Resource, size) //nolint:errcheck // console output
}

func (r *consoleRenderer) ProgressUpdate(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.statusLine(e)
	if r.interactive {
		fmt.Fprintf(r.out, "\r%-80s", line)
		return
	}
	fmt.Fprintln(r.out, line)
}

func (r *consoleRenderer) ProgressFinish(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interactive {
		fmt.Fprintf(r.out, "\r%-80s\n", r.statusLine(e))
	}
	if e.Complete() {
		r.ok.Fprintf(r.out, "done: %s\n", formatBytes(e.Progress)) //nolint:errcheck // console output
		return
	}
	r.fail.Fprintf(r.out, "incomplete: %s\n", formatBytes(e.Progress)) //nolint:errcheck // console output
}

func (r *consoleRenderer) statusLine(e progress.Event) string {
	if e.Expected <= 0 {
		return formatBytes(e.Progress)
	}
	frac := min(float64(e.Progress)/float64(e.Expected), 1)
	filled := int(frac * float64(r.barWidth))
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", r.barWidth-filled)
	return fmt.Sprintf("[%s] %5.1f%% %s / %s", bar, frac*100, formatBytes(e.Progress), formatBytes(e.Expected))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
