package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/toolhub-crawler/internal/progress"
)

// PrometheusSink derives run and target metrics from progress events.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	targetFetches  *prometheus.CounterVec
	targetBytes    *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
	toolChanges    *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the sink's collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolhub_crawl_runs_started_total",
			Help: "Crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolhub_crawl_runs_completed_total",
			Help: "Crawl runs completed, by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolhub_crawl_runs_running",
			Help: "Crawl runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolhub_crawl_run_duration_seconds",
			Help:    "Wall time per crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		targetFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolhub_crawl_target_fetches_total",
			Help: "Target fetches by site, status class and validity.",
		}, []string{"site", "status_class", "valid"}),
		targetBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolhub_crawl_target_bytes_total",
			Help: "Toolinfo bytes downloaded per site.",
		}, []string{"site"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolhub_crawl_target_duration_seconds",
			Help:    "Per target processing time by status class.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		}, []string{"status_class"}),
		toolChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolhub_crawl_tool_changes_total",
			Help: "Inventory changes made by crawls.",
		}, []string{"change"}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsRunning, s.runDuration,
		s.targetFetches, s.targetBytes, s.targetDuration, s.toolChanges,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.finishRun(evt, "success")
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageTargetDone:
			s.observeTarget(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.RunID, false) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeTarget(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	class := string(evt.StatusClass)
	s.targetFetches.WithLabelValues(site, class, fmt.Sprint(evt.Valid)).Inc()
	if evt.Bytes > 0 {
		s.targetBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.targetDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
	}
	s.addChanges("created", evt.Created)
	s.addChanges("updated", evt.Updated)
	s.addChanges("deleted", evt.Deleted)
}

func (s *PrometheusSink) addChanges(change string, n int) {
	if n > 0 {
		s.toolChanges.WithLabelValues(change).Add(float64(n))
	}
}

// track records a run start (start=true) or completion and reports whether
// the running set changed.
func (s *PrometheusSink) track(runID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[runID]
	if start {
		if ok {
			return false
		}
		s.running[runID] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, runID)
	return true
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
