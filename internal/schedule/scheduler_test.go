package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

type fakeStarter struct {
	mu       sync.Mutex
	err      error
	requests []scraper.Request
}

func (f *fakeStarter) StartRun(_ context.Context, req scraper.Request) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func (f *fakeStarter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestSchedulerFiresStartRun(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	s := New(starter, zap.NewNop())
	req := scraper.Request{ScrapeType: scraper.ScrapeTypeIncremental, Source: "aibase"}
	require.NoError(t, s.Add(Entry{Name: "hourly-aibase", Spec: "@every 20ms", Request: req}))

	s.Start()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.Eventually(t, func() bool { return starter.calls() >= 2 }, 2*time.Second, 10*time.Millisecond)
	starter.mu.Lock()
	require.Equal(t, req, starter.requests[0])
	starter.mu.Unlock()
}

func TestSchedulerAddValidates(t *testing.T) {
	t.Parallel()

	s := New(&fakeStarter{}, nil)

	require.Error(t, s.Add(Entry{Spec: "@hourly"}))
	require.Error(t, s.Add(Entry{Name: "bad", Spec: "every tuesday"}))
	require.NoError(t, s.Add(Entry{Name: "hourly", Spec: "0 * * * *"}))
	require.Error(t, s.Add(Entry{Name: "hourly", Spec: "@hourly"}))

	entries := s.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "hourly", entries[0].Name)
}

func TestSchedulerEntriesReportNextRun(t *testing.T) {
	t.Parallel()

	s := New(&fakeStarter{}, nil)
	require.NoError(t, s.Add(Entry{Name: "hourly", Spec: "@hourly"}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 1 && !entries[0].Next.IsZero()
	}, time.Second, 10*time.Millisecond)
}

func TestTriggerSkipsConflict(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	starter := &fakeStarter{err: &scraper.ConflictError{RunID: uuid.New()}}
	s := New(starter, zap.New(core))

	s.trigger(Entry{Name: "busy"})

	require.Equal(t, 1, starter.calls())
	require.Equal(t, 1, logs.FilterMessage("scheduled run skipped; run already active").Len())
}

func TestTriggerLogsStartFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	starter := &fakeStarter{err: errors.New("boom")}
	s := New(starter, zap.New(core))

	s.trigger(Entry{Name: "broken"})

	require.Equal(t, 1, logs.FilterMessage("scheduled run failed to start").Len())
}

func TestStopHonoursContext(t *testing.T) {
	t.Parallel()

	s := New(&fakeStarter{}, nil)
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}
