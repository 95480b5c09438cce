package source

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

func drain(s Strategy) []scraper.WorkItem {
	var out []scraper.WorkItem
	for {
		item, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func TestPaginationStrategyBoundedByMaxPages(t *testing.T) {
	t.Parallel()

	s := NewPaginationStrategy(3)
	items := drain(s)
	require.Len(t, items, 3)
	require.Equal(t, 1, items[0].Page)
	require.Equal(t, 3, items[2].Page)
	require.Equal(t, 3, *s.Total())
}

func TestPaginationStrategyStopsWhenExhausted(t *testing.T) {
	t.Parallel()

	s := NewPaginationStrategy(10)
	_, ok := s.Next()
	require.True(t, ok)
	s.Exhaust()
	_, ok = s.Next()
	require.False(t, ok)
}

func TestRangeStrategyInclusive(t *testing.T) {
	t.Parallel()

	s := NewRangeStrategy(100, 102)
	items := drain(s)
	require.Len(t, items, 3)
	require.Equal(t, int64(100), items[0].ID)
	require.Equal(t, int64(102), items[2].ID)
	require.Equal(t, 3, *s.Total())
}

func TestRangeStrategyInt64Bounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int64
		want       []int64
		total      int
	}{
		{name: "single max id", start: math.MaxInt64, end: math.MaxInt64, want: []int64{math.MaxInt64}, total: 1},
		{name: "ends at max id", start: math.MaxInt64 - 2, end: math.MaxInt64, want: []int64{math.MaxInt64 - 2, math.MaxInt64 - 1, math.MaxInt64}, total: 3},
		{name: "zero", start: 0, end: 0, want: []int64{0}, total: 1},
		{name: "empty", start: 5, end: 4, total: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewRangeStrategy(tt.start, tt.end)
			var got []int64
			for range len(tt.want) + 2 {
				item, ok := s.Next()
				if !ok {
					break
				}
				got = append(got, item.ID)
			}
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.total, *s.Total())
		})
	}
}

func TestRangeStrategyTotalSaturates(t *testing.T) {
	t.Parallel()

	s := NewRangeStrategy(0, math.MaxInt64)
	require.Equal(t, math.MaxInt, *s.Total())
}

func TestArchiveStrategyHasUnknownTotal(t *testing.T) {
	t.Parallel()

	s := NewArchiveStrategy(2)
	items := drain(s)
	require.Len(t, items, 2)
	require.Equal(t, scraper.WorkArchive, items[0].Kind)
	require.Nil(t, s.Total())
}
