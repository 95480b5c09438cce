package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// PrometheusSink exports scrape progress metrics via Prometheus. It owns the
// collectors for runs started/finished/running and per-source article counts.
type PrometheusSink struct {
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	runsRunning  prometheus.Gauge
	runDuration  *prometheus.HistogramVec

	pages    *prometheus.CounterVec
	articles *prometheus.CounterVec
	errors   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total scrape runs that have started.",
		}, []string{"source"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_finished_total",
			Help: "Total scrape runs finished partitioned by result.",
		}, []string{"source", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_runs_running",
			Help: "Current number of running scrape runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_pages_scraped_total",
			Help: "Work items processed per source.",
		}, []string{"source"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_articles_total",
			Help: "Articles processed partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_run_errors_total",
			Help: "Errors recorded by scrape runs per source.",
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runDuration,
		s.pages,
		s.articles,
		s.errors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if evt.Type == progress.TypeIdle {
		return
	}
	source := evt.Source
	if source == "" {
		source = "unknown"
	}
	if evt.Type == progress.TypeStarted {
		s.runsStarted.WithLabelValues(source).Inc()
	}
	if s.tracker.start(evt.RunID) {
		s.runsRunning.Inc()
	}

	d := s.tracker.advance(evt.RunID, evt.Counters)
	s.addPositive(s.pages.WithLabelValues(source), d.PagesScraped)
	s.addPositive(s.articles.WithLabelValues(source, "new"), d.ArticlesNew)
	s.addPositive(s.articles.WithLabelValues(source, "updated"), d.ArticlesUpdated)
	s.addPositive(s.articles.WithLabelValues(source, "failed"), d.ArticlesFailed)
	s.addPositive(s.errors.WithLabelValues(source), d.ErrorCount)

	if evt.Type.Terminal() {
		result := string(evt.Type)
		s.runsFinished.WithLabelValues(source, result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	}
}

func (s *PrometheusSink) addPositive(c prometheus.Counter, v int) {
	if v > 0 {
		c.Add(float64(v))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker remembers the last counters seen per run so cumulative snapshots
// can be turned into counter increments.
type runTracker struct {
	mu   sync.Mutex
	runs map[uuid.UUID]scraper.Counters
}

func newRunTracker() *runTracker {
	return &runTracker{runs: make(map[uuid.UUID]scraper.Counters)}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.runs[id]; ok {
		return false
	}
	t.runs[id] = scraper.Counters{}
	return true
}

func (t *runTracker) advance(id uuid.UUID, now scraper.Counters) scraper.Delta {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.runs[id]
	t.runs[id] = now
	return scraper.Delta{
		PagesScraped:    now.PagesScraped - prev.PagesScraped,
		ArticlesFound:   now.ArticlesFound - prev.ArticlesFound,
		ArticlesNew:     now.ArticlesNew - prev.ArticlesNew,
		ArticlesUpdated: now.ArticlesUpdated - prev.ArticlesUpdated,
		ArticlesFailed:  now.ArticlesFailed - prev.ArticlesFailed,
		ErrorCount:      now.ErrorCount - prev.ErrorCount,
	}
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.runs[id]; !ok {
		return false
	}
	delete(t.runs, id)
	return true
}
