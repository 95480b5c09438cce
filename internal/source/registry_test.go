package source

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

func int64p(v int64) *int64 { return &v }

func TestLookupIsCaseInsensitiveWithAliases(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})
	for _, key := range []string{"smolai", "smol.ai", "SMOL", " smol "} {
		d, ok := reg.Lookup(key)
		require.True(t, ok, key)
		require.Equal(t, SmolAI, d.ID)
	}
	_, ok := reg.Lookup("nope")
	require.False(t, ok)

	list := reg.List()
	require.Len(t, list, 2)
	require.Equal(t, AIBase, list[0].ID)
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})
	plan, err := reg.Resolve(scraper.Request{})
	require.NoError(t, err)
	require.Equal(t, AIBase, plan.Source.ID)
	require.Equal(t, scraper.ScrapeTypeIncremental, plan.ScrapeType)
	require.Equal(t, scraper.ModePagination, plan.Mode)
	require.Equal(t, 100, plan.Config.MaxPages)
	require.Equal(t, StopOnKnownBatch, plan.StopRule)
}

func TestResolveStopRules(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})

	full, err := reg.Resolve(scraper.Request{ScrapeType: scraper.ScrapeTypeFull, Source: AIBase, MaxPages: 3})
	require.NoError(t, err)
	require.Equal(t, StopNever, full.StopRule)
	require.Equal(t, 3, full.Config.MaxPages)

	archive, err := reg.Resolve(scraper.Request{ScrapeType: scraper.ScrapeTypeIncremental, Source: "smol"})
	require.NoError(t, err)
	require.Equal(t, scraper.ModeArchive, archive.Mode)
	require.Equal(t, StopOnFirstKnown, archive.StopRule)
}

func TestResolveRejectsBadRequests(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{MaxRange: 10})

	tests := []struct {
		name   string
		req    scraper.Request
		target any
	}{
		{
			name:   "unknown source",
			req:    scraper.Request{Source: "example"},
			target: new(*scraper.UnknownSourceError),
		},
		{
			name:   "bad scrape type",
			req:    scraper.Request{ScrapeType: "weekly"},
			target: new(*scraper.UnsupportedModeError),
		},
		{
			name:   "range on archive source",
			req:    scraper.Request{Source: SmolAI, Mode: scraper.ModeRange, StartID: int64p(1), EndID: int64p(2)},
			target: new(*scraper.UnsupportedModeError),
		},
		{
			name:   "start after end",
			req:    scraper.Request{ScrapeType: scraper.ScrapeTypeFull, StartID: int64p(5), EndID: int64p(4)},
			target: new(*scraper.InvalidRangeError),
		},
		{
			name:   "negative id",
			req:    scraper.Request{ScrapeType: scraper.ScrapeTypeFull, StartID: int64p(-1), EndID: int64p(4)},
			target: new(*scraper.InvalidRangeError),
		},
		{
			name:   "range too large",
			req:    scraper.Request{ScrapeType: scraper.ScrapeTypeFull, StartID: int64p(1), EndID: int64p(11)},
			target: new(*scraper.InvalidRangeError),
		},
		{
			name:   "missing end",
			req:    scraper.Request{ScrapeType: scraper.ScrapeTypeFull, Mode: scraper.ModeRange, StartID: int64p(1)},
			target: new(*scraper.InvalidRangeError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := reg.Resolve(tt.req)
			require.Error(t, err)
			require.True(t, errors.As(err, tt.target), "got %T: %v", err, err)
		})
	}
}

func TestResolveRangeBoundaries(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})

	plan, err := reg.Resolve(scraper.Request{
		ScrapeType: scraper.ScrapeTypeFull,
		StartID:    int64p(100),
		EndID:      int64p(100),
	})
	require.NoError(t, err)
	require.Equal(t, scraper.ModeRange, plan.Mode)

	s := plan.NewStrategy()
	require.Equal(t, 1, *s.Total())
	item, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, int64(100), item.ID)
	_, ok = s.Next()
	require.False(t, ok)
}

func TestResolveSingleRangeUsesStartOnly(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})
	plan, err := reg.Resolve(scraper.Request{ScrapeType: scraper.ScrapeTypeSingle, StartID: int64p(42)})
	require.NoError(t, err)
	require.Equal(t, StopNever, plan.StopRule)

	s := plan.NewStrategy()
	item, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, scraper.WorkItem{Kind: scraper.WorkArticleID, ID: 42}, item)
	_, ok = s.Next()
	require.False(t, ok)
}

func TestResolveRangeInt64Extremes(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry(Limits{})

	tests := []struct {
		name       string
		start, end int64
		wantErr    bool
	}{
		{name: "whole int64 space", start: 0, end: math.MaxInt64, wantErr: true},
		{name: "past cap", start: 1, end: 50001, wantErr: true},
		{name: "exactly cap", start: 1, end: 50000},
		{name: "max id only", start: math.MaxInt64, end: math.MaxInt64},
		{name: "cap ending at max id", start: math.MaxInt64 - 49999, end: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := reg.Resolve(scraper.Request{
				ScrapeType: scraper.ScrapeTypeFull,
				StartID:    int64p(tt.start),
				EndID:      int64p(tt.end),
			})
			if tt.wantErr {
				var rangeErr *scraper.InvalidRangeError
				require.ErrorAs(t, err, &rangeErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.end, plan.Config.EndID)
		})
	}
}

func TestResolveMaxIDYieldsOneItem(t *testing.T) {
	t.Parallel()

	plan, err := DefaultRegistry(Limits{}).Resolve(scraper.Request{
		ScrapeType: scraper.ScrapeTypeFull,
		StartID:    int64p(math.MaxInt64),
		EndID:      int64p(math.MaxInt64),
	})
	require.NoError(t, err)

	s := plan.NewStrategy()
	require.Equal(t, 1, *s.Total())
	item, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, int64(math.MaxInt64), item.ID)
	_, ok = s.Next()
	require.False(t, ok)
}

func TestResolveSingleRangeIgnoresEndID(t *testing.T) {
	t.Parallel()

	plan, err := DefaultRegistry(Limits{}).Resolve(scraper.Request{
		ScrapeType: scraper.ScrapeTypeSingle,
		StartID:    int64p(42),
		EndID:      int64p(90),
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), plan.Config.StartID)
	require.Equal(t, int64(42), plan.Config.EndID)
	require.Equal(t, 1, *plan.NewStrategy().Total())
}
