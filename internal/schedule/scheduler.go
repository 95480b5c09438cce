// Package schedule starts scrape runs on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// Starter launches runs. *run.Manager satisfies it.
type Starter interface {
	StartRun(ctx context.Context, req scraper.Request) (uuid.UUID, error)
}

// Entry is one scheduled run request.
type Entry struct {
	Name    string
	Spec    string
	Request scraper.Request
}

// Scheduled describes a registered entry.
type Scheduled struct {
	Name string
	Spec string
	Next time.Time
}

// Scheduler triggers StartRun for each entry. A trigger that finds a run
// already active is logged and skipped.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	starter Starter
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id    cron.EntryID
	entry Entry
}

// New constructs an idle Scheduler. Specs use the five-field cron format and
// the @every/@hourly descriptors.
func New(starter Starter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("schedule")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLog := cronLogger{sugar: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		parser:  parser,
		starter: starter,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]scheduledEntry),
	}
}

// Add registers e. Names must be unique.
func (s *Scheduler) Add(e Entry) error {
	if e.Name == "" {
		return errors.New("schedule name is required")
	}
	if _, err := s.parser.Parse(e.Spec); err != nil {
		return fmt.Errorf("parse schedule %q: %w", e.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("schedule %q already registered", e.Name)
	}
	entry := e
	id, err := s.cron.AddFunc(e.Spec, func() { s.trigger(entry) })
	if err != nil {
		return fmt.Errorf("add schedule %q: %w", e.Name, err)
	}
	s.entries[e.Name] = scheduledEntry{id: id, entry: e}
	s.logger.Info("schedule registered",
		zap.String("name", e.Name),
		zap.String("spec", e.Spec),
		zap.String("source", e.Request.Source),
		zap.String("scrape_type", string(e.Request.ScrapeType)),
	)
	return nil
}

// Entries lists registered schedules with their next fire time.
func (s *Scheduler) Entries() []Scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Scheduled, 0, len(s.entries))
	for _, se := range s.entries {
		out = append(out, Scheduled{
			Name: se.entry.Name,
			Spec: se.entry.Spec,
			Next: s.cron.Entry(se.id).Next,
		})
	}
	return out
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight triggers.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) trigger(e Entry) {
	logger := s.logger.With(zap.String("name", e.Name))
	id, err := s.starter.StartRun(s.ctx, e.Request)
	var conflict *scraper.ConflictError
	switch {
	case err == nil:
		logger.Info("scheduled run started", zap.String("run_id", id.String()))
	case errors.As(err, &conflict):
		logger.Info("scheduled run skipped; run already active",
			zap.String("active_run_id", conflict.RunID.String()))
	default:
		logger.Error("scheduled run failed to start", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
