package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scottlangford2/research-scraper/internal/progress"
)

// PrometheusSink exports run and per-source progress via Prometheus.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsActive    prometheus.Gauge
	fetchStage    prometheus.Histogram

	sourceOutcomes *prometheus.CounterVec
	sourceRecords  *prometheus.CounterVec
	sourceDropped  *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfp_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfp_runs_completed_total",
			Help: "Total pipeline runs whose fetch stage finished.",
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rfp_runs_active",
			Help: "Runs currently fetching.",
		}),
		fetchStage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfp_fetch_stage_seconds",
			Help:    "Wall time of the fetch stage per run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		sourceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_source_outcomes_total",
			Help: "Source fetch outcomes partitioned by source and status.",
		}, []string{"source", "status"}),
		sourceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_source_records_total",
			Help: "Normalized records returned per source.",
		}, []string{"source"}),
		sourceDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfp_source_dropped_total",
			Help: "Raw records dropped during normalization per source.",
		}, []string{"source"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rfp_source_duration_seconds",
			Help:    "Source call latency partitioned by source and status.",
			Buckets: []float64{0.25, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"source", "status"}),
		active: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.fetchStage,
		s.sourceOutcomes,
		s.sourceRecords,
		s.sourceDropped,
		s.sourceDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsActive.Inc()
			}
		case progress.StageRunDone:
			s.runsCompleted.Inc()
			if evt.Dur > 0 {
				s.fetchStage.Observe(evt.Dur.Seconds())
			}
			if s.track(evt.RunID, false) {
				s.runsActive.Dec()
			}
		case progress.StageSourceDone:
			src := string(evt.Source)
			status := string(evt.Status)
			s.sourceOutcomes.WithLabelValues(src, status).Inc()
			if evt.Records > 0 {
				s.sourceRecords.WithLabelValues(src).Add(float64(evt.Records))
			}
			if evt.Dropped > 0 {
				s.sourceDropped.WithLabelValues(src).Add(float64(evt.Dropped))
			}
			if evt.Dur > 0 {
				s.sourceDuration.WithLabelValues(src, status).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// track flips membership of runID in the active set and reports whether it changed.
func (s *PrometheusSink) track(runID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[runID]
	if start {
		if ok {
			return false
		}
		s.active[runID] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.active, runID)
	return true
}
