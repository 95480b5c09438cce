package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersApplyAndClone(t *testing.T) {
	t.Parallel()

	total := 3
	c := Counters{TotalPages: &total}
	c.Apply(Delta{PagesScraped: 1, ArticlesFound: 2, ArticlesNew: 2})
	c.Apply(Delta{ArticlesFailed: 1, ErrorCount: 1})

	clone := c.Clone()
	*clone.TotalPages = 10
	require.Equal(t, 3, *c.TotalPages)
	require.Equal(t, 1, clone.PagesScraped)
	require.Equal(t, 2, clone.ArticlesNew)
	require.Equal(t, 1, clone.ErrorCount)
}

func TestDeltaNegative(t *testing.T) {
	t.Parallel()

	require.False(t, Delta{PagesScraped: 1}.Negative())
	require.True(t, Delta{ArticlesNew: -1}.Negative())
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, RunStatusRunning.Terminal())
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled} {
		require.True(t, s.Terminal(), s)
	}
}

func TestWorkItemString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "page:2", WorkItem{Kind: WorkListingPage, Page: 2}.String())
	require.Equal(t, "id:101", WorkItem{Kind: WorkArticleID, ID: 101}.String())
	require.Equal(t, "archive:1", WorkItem{Kind: WorkArchive, Page: 1}.String())
	require.True(t, WorkItem{Kind: WorkArchive}.Listing())
	require.False(t, WorkItem{Kind: WorkArticleID}.Listing())
}
