package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

const interruptedReason = "interrupted: process restarted before run finished"

// Config tunes the Manager. Zero values fall back to defaults.
type Config struct {
	// FetchTimeout bounds a single listing or article fetch.
	FetchTimeout time.Duration
	// PersistTimeout bounds each repository write made by the drive loop.
	PersistTimeout time.Duration
	// DefaultListLimit and MaxListLimit clamp ListRuns.
	DefaultListLimit int
	MaxListLimit     int
	Retry            scraper.RetryPolicy
	Now              func() time.Time
	NewID            func() (uuid.UUID, error)
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.DefaultListLimit <= 0 {
		c.DefaultListLimit = 20
	}
	if c.MaxListLimit <= 0 {
		c.MaxListLimit = 500
	}
	if c.Retry == nil {
		c.Retry = scraper.NewExponentialRetryPolicy(0, 0, 0)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewV7
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Registry *source.Registry
	Fetcher  scraper.Fetcher
	Runs     store.RunRepository
	Articles store.ArticleRepository
	Emitter  progress.Emitter
}

// Status is the operator view of the run slot.
type Status struct {
	Running    bool         `json:"running"`
	CurrentRun *scraper.Run `json:"current_run"`
}

type activeRun struct {
	machine       *Machine
	plan          source.Plan
	strategy      source.Strategy
	cancel        context.CancelFunc
	done          chan struct{}
	stopRequested bool
}

// Manager enforces that at most one run executes at a time and owns the
// goroutine driving it.
type Manager struct {
	cfg      Config
	registry *source.Registry
	fetcher  scraper.Fetcher
	runs     store.RunRepository
	articles store.ArticleRepository
	emitter  progress.Emitter
	logger   *zap.Logger

	mu     sync.Mutex
	active *activeRun
	wg     sync.WaitGroup
}

// NewManager validates deps and returns an idle Manager.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("run: registry is required")
	case deps.Fetcher == nil:
		return nil, errors.New("run: fetcher is required")
	case deps.Runs == nil:
		return nil, errors.New("run: run repository is required")
	case deps.Articles == nil:
		return nil, errors.New("run: article repository is required")
	}
	cfg = cfg.withDefaults()
	emitter := deps.Emitter
	if emitter == nil {
		emitter = discardEmitter{}
	}
	return &Manager{
		cfg:      cfg,
		registry: deps.Registry,
		fetcher:  deps.Fetcher,
		runs:     deps.Runs,
		articles: deps.Articles,
		emitter:  emitter,
		logger:   cfg.Logger,
	}, nil
}

// StartRun validates req, claims the run slot and launches the run in the
// background. It returns a *scraper.ConflictError when a run is active.
func (m *Manager) StartRun(_ context.Context, req scraper.Request) (uuid.UUID, error) {
	plan, err := m.registry.Resolve(req)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := m.cfg.NewID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return uuid.Nil, &scraper.ConflictError{RunID: m.active.machine.ID()}
	}

	strategy := plan.NewStrategy()
	machine := NewMachine(scraper.Run{
		ID:         id,
		ScrapeType: plan.ScrapeType,
		Source:     plan.Source.ID,
		Mode:       plan.Mode,
		Counters:   scraper.Counters{TotalPages: strategy.Total()},
		StartedAt:  m.cfg.Now().UTC(),
		Config:     plan.Config,
	}, m.runs, m.cfg.Now)

	// Runs outlive the request that started them.
	runCtx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		machine:  machine,
		plan:     plan,
		strategy: strategy,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.active = ar
	m.wg.Add(1)
	go m.drive(runCtx, ar)

	m.logger.Info("scrape run started",
		zap.String("run_id", id.String()),
		zap.String("source", plan.Source.ID),
		zap.String("scrape_type", string(plan.ScrapeType)),
		zap.String("mode", string(plan.Mode)),
	)
	return id, nil
}

// StopRun requests cancellation of the active run. Repeated calls while the
// run drains return the same id.
func (m *Manager) StopRun() (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return uuid.Nil, scraper.ErrNotRunning
	}
	id := m.active.machine.ID()
	if !m.active.stopRequested {
		m.active.stopRequested = true
		m.active.cancel()
		m.logger.Info("scrape run stop requested", zap.String("run_id", id.String()))
	}
	return id, nil
}

// GetStatus reports whether a run is active and its current snapshot.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Status{}
	}
	snap := m.active.machine.Snapshot()
	return Status{Running: true, CurrentRun: &snap}
}

// GetRun returns one run. The active run is served from memory.
func (m *Manager) GetRun(ctx context.Context, id uuid.UUID) (scraper.Run, error) {
	m.mu.Lock()
	if m.active != nil && m.active.machine.ID() == id {
		snap := m.active.machine.Snapshot()
		m.mu.Unlock()
		return snap, nil
	}
	m.mu.Unlock()
	return m.runs.GetRun(ctx, id)
}

// ListRuns returns recent runs, newest first. limit is clamped to
// [1, MaxListLimit]; non-positive values use DefaultListLimit.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]scraper.Run, error) {
	if limit <= 0 {
		limit = m.cfg.DefaultListLimit
	}
	if limit > m.cfg.MaxListLimit {
		limit = m.cfg.MaxListLimit
	}
	return m.runs.ListRuns(ctx, limit)
}

// Recover marks runs left in the running state by a previous process as
// failed. It must be called before the first StartRun.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for range m.cfg.MaxListLimit {
		stale, err := m.runs.GetActiveRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("load active run: %w", err)
		}
		now := m.cfg.Now().UTC()
		reason := interruptedReason
		stale.Status = scraper.RunStatusFailed
		stale.CompletedAt = &now
		stale.LastError = &reason
		if err := m.runs.UpdateRun(ctx, stale); err != nil && !errors.Is(err, store.ErrRunFinished) {
			return recovered, fmt.Errorf("fail interrupted run %s: %w", stale.ID, err)
		}
		recovered++
		m.logger.Warn("marked interrupted run failed", zap.String("run_id", stale.ID.String()))
	}
	return recovered, errors.New("run: too many interrupted runs to recover")
}

// Wait blocks until the active run, if any, has finished.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	ar := m.active
	m.mu.Unlock()
	if ar == nil {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the active run and waits for its drive loop to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	if _, err := m.StopRun(); err != nil && !errors.Is(err, scraper.ErrNotRunning) {
		return err
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release(ar *activeRun) {
	m.mu.Lock()
	if m.active == ar {
		m.active = nil
	}
	m.mu.Unlock()
	close(ar.done)
	m.wg.Done()
}

type discardEmitter struct{}

func (discardEmitter) Emit(progress.Event) {}
