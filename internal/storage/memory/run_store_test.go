package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	run := scraper.Run{
		ID:        uuid.New(),
		Source:    "aibase",
		Status:    scraper.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := s.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}

	active, err := s.GetActiveRun(ctx)
	if err != nil || active.ID != run.ID {
		t.Fatalf("GetActiveRun() = %v, %v", active.ID, err)
	}

	run.PagesScraped = 2
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	now := time.Now().UTC()
	run.Status = scraper.RunStatusCompleted
	run.CompletedAt = &now
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun(completed) error = %v", err)
	}

	run.Status = scraper.RunStatusFailed
	if err := s.UpdateRun(ctx, run); !errors.Is(err, store.ErrRunFinished) {
		t.Fatalf("expected ErrRunFinished, got %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != scraper.RunStatusCompleted || got.PagesScraped != 2 {
		t.Fatalf("unexpected stored run %+v", got)
	}

	if _, err := s.GetActiveRun(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active run, got %v", err)
	}
	if _, err := s.GetRun(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStoreListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := scraper.Run{ID: uuid.New(), StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("expected newest run first, got %v", runs[0].StartedAt)
	}
}
