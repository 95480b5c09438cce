package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

// RunStore keeps run history in a map guarded by a mutex.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]scraper.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]scraper.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run scraper.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// UpdateRun replaces the stored snapshot unless the run already finished.
func (s *RunStore) UpdateRun(_ context.Context, run scraper.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status.Terminal() {
		return store.ErrRunFinished
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (scraper.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return scraper.Run{}, store.ErrNotFound
	}
	return run.Clone(), nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]scraper.Run, error) {
	s.mu.RLock()
	out := make([]scraper.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetActiveRun returns the newest run still marked running.
func (s *RunStore) GetActiveRun(ctx context.Context) (scraper.Run, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return scraper.Run{}, err
	}
	for _, run := range runs {
		if run.Status == scraper.RunStatusRunning {
			return run, nil
		}
	}
	return scraper.Run{}, store.ErrNotFound
}

func sortNewestFirst(runs []scraper.Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
