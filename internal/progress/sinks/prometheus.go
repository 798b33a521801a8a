package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-monitor/internal/metrics"
	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// PrometheusSink exports transfer progress metrics. It owns collectors for
// sources started, finished and active plus byte and update counters.
type PrometheusSink struct {
	started      prometheus.Counter
	finished     *prometheus.CounterVec
	active       prometheus.Gauge
	updates      prometheus.Counter
	bytes        *prometheus.CounterVec
	transferSize *prometheus.HistogramVec

	tracker *sourceTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_sources_started_total",
			Help: "Total progress sources that began tracking.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_sources_finished_total",
			Help: "Total progress sources that finished, partitioned by result.",
		}, []string{"result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_sources_active",
			Help: "Progress sources currently being tracked.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_updates_total",
			Help: "Coalesced progress update notifications.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_bytes_total",
			Help: "Bytes transferred by tracked sources, partitioned by host.",
		}, []string{"host"}),
		transferSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_transfer_size_bytes",
			Help:    "Final byte count per finished source.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"result"}),
		tracker: newSourceTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.started,
		s.finished,
		s.active,
		s.updates,
		s.bytes,
		s.transferSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindStart:
		s.started.Inc()
		if s.tracker.start(evt.SourceID) {
			s.active.Inc()
		}
		s.addBytes(evt)
	case progress.KindUpdate:
		s.updates.Inc()
		s.addBytes(evt)
	case progress.KindFinish:
		s.addBytes(evt)
		result := resultLabel(evt)
		s.finished.WithLabelValues(result).Inc()
		s.transferSize.WithLabelValues(result).Observe(float64(evt.Progress))
		if s.tracker.finish(evt.SourceID) {
			s.active.Dec()
		}
	}
}

func (s *PrometheusSink) addBytes(evt progress.Event) {
	if delta := s.tracker.advance(evt.SourceID, evt.Progress); delta > 0 {
		s.bytes.WithLabelValues(metrics.SanitizeSite(evt.Resource)).Add(float64(delta))
	}
}

func resultLabel(evt progress.Event) string {
	if evt.Complete() {
		return "complete"
	}
	return "abandoned"
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// sourceTracker remembers which sources are active and the last byte count
// seen for each so counters only receive positive deltas.
type sourceTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
	seen    map[string]int64
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{
		running: make(map[string]struct{}),
		seen:    make(map[string]int64),
	}
}

func (t *sourceTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sourceTracker) advance(id string, progress int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	delta := progress - t.seen[id]
	if delta > 0 {
		t.seen[id] = progress
	}
	return delta
}

func (t *sourceTracker) finish(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, id)
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
