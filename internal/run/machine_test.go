package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/storage/memory"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

func newTestMachine(t *testing.T) (*Machine, *memory.RunStore) {
	t.Helper()
	repo := memory.NewRunStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMachine(scraper.Run{
		ID:         uuid.New(),
		ScrapeType: scraper.ScrapeTypeFull,
		Source:     "aibase",
		Mode:       scraper.ModePagination,
	}, repo, func() time.Time { return now })
	require.NoError(t, m.Create(context.Background()))
	return m, repo
}

func TestMachineRecordProgressPersists(t *testing.T) {
	t.Parallel()
	m, repo := newTestMachine(t)
	ctx := context.Background()

	_, err := m.RecordProgress(ctx, scraper.Delta{PagesScraped: 1, ArticlesNew: 2})
	require.NoError(t, err)
	snap, err := m.RecordProgress(ctx, scraper.Delta{ArticlesFailed: 1, ErrorCount: 1, LastError: "boom"})
	require.NoError(t, err)

	require.Equal(t, 1, snap.PagesScraped)
	require.Equal(t, 2, snap.ArticlesNew)
	require.Equal(t, 1, snap.ArticlesFailed)
	require.NotNil(t, snap.LastError)
	require.Equal(t, "boom", *snap.LastError)

	stored, err := repo.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, snap.Counters, stored.Counters)
	require.Equal(t, scraper.RunStatusRunning, stored.Status)
}

func TestMachineRejectsNegativeDelta(t *testing.T) {
	t.Parallel()
	m, _ := newTestMachine(t)

	_, err := m.RecordProgress(context.Background(), scraper.Delta{ArticlesNew: -1})
	require.Error(t, err)
	require.Zero(t, m.Snapshot().ArticlesNew)
}

func TestMachineTerminalIsAbsorbing(t *testing.T) {
	t.Parallel()
	m, repo := newTestMachine(t)
	ctx := context.Background()

	snap, changed, err := m.Cancel(ctx)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, scraper.RunStatusCancelled, snap.Status)
	require.NotNil(t, snap.CompletedAt)

	again, changed, err := m.Fail(ctx, "late failure")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, scraper.RunStatusCancelled, again.Status)
	require.Nil(t, again.LastError)

	_, err = m.RecordProgress(ctx, scraper.Delta{ArticlesNew: 1})
	require.ErrorIs(t, err, scraper.ErrRunTerminal)
	require.Zero(t, m.Snapshot().ArticlesNew)

	stored, err := repo.GetRun(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, scraper.RunStatusCancelled, stored.Status)
}

func TestMachineFailRecordsReason(t *testing.T) {
	t.Parallel()
	m, _ := newTestMachine(t)

	snap, changed, err := m.Fail(context.Background(), "database unavailable")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, scraper.RunStatusFailed, snap.Status)
	require.Equal(t, "database unavailable", *snap.LastError)
}

func TestMachineSurfacesPersistErrors(t *testing.T) {
	t.Parallel()
	repo := &failingRunRepo{RunRepository: memory.NewRunStore(), updateErr: errors.New("disk full")}
	m := NewMachine(scraper.Run{ID: uuid.New(), Source: "aibase"}, repo, nil)
	require.NoError(t, m.Create(context.Background()))

	snap, err := m.RecordProgress(context.Background(), scraper.Delta{ArticlesNew: 1})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, snap.ArticlesNew)
}

type failingRunRepo struct {
	store.RunRepository
	updateErr error
}

func (r *failingRunRepo) UpdateRun(ctx context.Context, run scraper.Run) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.RunRepository.UpdateRun(ctx, run)
}
