package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

// Machine guards the lifecycle and counters of one run. Status only moves
// from running to a terminal state, counters only grow, and every transition
// is written through to the run repository.
type Machine struct {
	mu   sync.Mutex
	run  scraper.Run
	repo store.RunRepository
	now  func() time.Time
}

// NewMachine returns a machine holding run in the running state.
func NewMachine(run scraper.Run, repo store.RunRepository, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	run.Status = scraper.RunStatusRunning
	run.CompletedAt = nil
	if run.StartedAt.IsZero() {
		run.StartedAt = now().UTC()
	}
	return &Machine{run: run, repo: repo, now: now}
}

// ID returns the run identifier.
func (m *Machine) ID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.ID
}

// Snapshot returns a copy of the current run.
func (m *Machine) Snapshot() scraper.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.Clone()
}

// Create inserts the run into history.
func (m *Machine) Create(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.CreateRun(ctx, m.Snapshot()); err != nil {
		return fmt.Errorf("persist run start: %w", err)
	}
	return nil
}

// RecordProgress applies a non-negative delta and persists the snapshot. On a
// finished run it changes nothing and returns scraper.ErrRunTerminal.
func (m *Machine) RecordProgress(ctx context.Context, d scraper.Delta) (scraper.Run, error) {
	if d.Negative() {
		return m.Snapshot(), fmt.Errorf("negative progress delta %+v", d)
	}
	m.mu.Lock()
	if m.run.Status.Terminal() {
		snap := m.run.Clone()
		m.mu.Unlock()
		return snap, scraper.ErrRunTerminal
	}
	m.run.Counters.Apply(d)
	if d.LastError != "" {
		msg := d.LastError
		m.run.LastError = &msg
	}
	snap := m.run.Clone()
	m.mu.Unlock()

	return snap, m.persist(ctx, snap)
}

// Complete marks the run completed.
func (m *Machine) Complete(ctx context.Context) (scraper.Run, bool, error) {
	return m.finish(ctx, scraper.RunStatusCompleted, "")
}

// Fail marks the run failed with reason.
func (m *Machine) Fail(ctx context.Context, reason string) (scraper.Run, bool, error) {
	return m.finish(ctx, scraper.RunStatusFailed, reason)
}

// Cancel marks the run cancelled.
func (m *Machine) Cancel(ctx context.Context) (scraper.Run, bool, error) {
	return m.finish(ctx, scraper.RunStatusCancelled, "")
}

// finish moves the run to a terminal status. The boolean reports whether this
// call made the transition; later calls return the existing snapshot.
func (m *Machine) finish(ctx context.Context, status scraper.RunStatus, reason string) (scraper.Run, bool, error) {
	m.mu.Lock()
	if m.run.Status.Terminal() {
		snap := m.run.Clone()
		m.mu.Unlock()
		return snap, false, nil
	}
	now := m.now().UTC()
	m.run.Status = status
	m.run.CompletedAt = &now
	if reason != "" {
		m.run.LastError = &reason
	}
	snap := m.run.Clone()
	m.mu.Unlock()

	return snap, true, m.persist(ctx, snap)
}

func (m *Machine) persist(ctx context.Context, snap scraper.Run) error {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.UpdateRun(ctx, snap); err != nil {
		return fmt.Errorf("persist run %s: %w", snap.Status, err)
	}
	return nil
}
