package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tulashvilimindia/batumi.work/internal/progress"
)

// PrometheusSink exports run and item counters.
type PrometheusSink struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	runsActive   *prometheus.GaugeVec
	runDuration  *prometheus.HistogramVec

	items      *prometheus.CounterVec
	partitions *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Crawl runs started per source.",
		}, []string{"source"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_finished_total",
			Help: "Crawl runs finished per source and final status.",
		}, []string{"source", "status"}),
		runsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawler_runs_active",
			Help: "Crawl runs currently executing per source.",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"source", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_items_processed_total",
			Help: "Postings processed per source and result.",
		}, []string{"source", "result"}),
		partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_partitions_done_total",
			Help: "Partitions finished per source and outcome.",
		}, []string{"source", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsActive,
		s.runDuration,
		s.items,
		s.partitions,
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
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(evt.Source).Inc()
			if s.tracker.start(evt.JobID) {
				s.runsActive.WithLabelValues(evt.Source).Inc()
			}
		case progress.StageItemDone:
			s.items.WithLabelValues(evt.Source, string(evt.Result)).Inc()
		case progress.StagePartitionDone:
			outcome := "ok"
			if evt.Note != "" {
				outcome = "error"
			}
			s.partitions.WithLabelValues(evt.Source, outcome).Inc()
		case progress.StageRunDone:
			status := string(evt.Status)
			s.runsFinished.WithLabelValues(evt.Source, status).Inc()
			if evt.Dur > 0 {
				s.runDuration.WithLabelValues(evt.Source, status).Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.JobID) {
				s.runsActive.WithLabelValues(evt.Source).Dec()
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
