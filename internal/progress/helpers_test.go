package progress

import (
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/progress-monitor/internal/clock/system"
	"github.com/JakeFAU/progress-monitor/internal/metering"
)

var testEpoch = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ProgressStart(e Event)  { r.add(e) }
func (r *recorder) ProgressUpdate(e Event) { r.add(e) }
func (r *recorder) ProgressFinish(e Event) { r.add(e) }

func (r *recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) Count(kind Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type staticIDs struct {
	mu   sync.Mutex
	next int
}

func (g *staticIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "src-" + strconv.Itoa(g.next), nil
}

func meteredPolicy(threshold int64) metering.Policy {
	return metering.NewRulesPolicy(metering.Rules{Enabled: true, Threshold: threshold})
}

func newTestMonitor(opts ...Option) *Monitor {
	base := []Option{WithClock(system.Fixed{At: testEpoch}), WithPolicy(meteredPolicy(8192))}
	return NewMonitor(append(base, opts...)...)
}
