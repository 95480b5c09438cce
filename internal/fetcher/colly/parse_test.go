package collyfetcher

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestFinalizeDerivedFields(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("字", 250)
	a := scraper.Article{Content: long}
	finalize(&a)
	assert.Equal(t, strings.Repeat("字", 200)+"...", a.Excerpt)
	assert.Equal(t, 1, a.ReadTimeMinutes)
	assert.Len(t, a.ContentHash, 64)

	words := strings.Repeat("word ", 650)
	b := scraper.Article{Content: words}
	finalize(&b)
	assert.Equal(t, 3, b.ReadTimeMinutes)

	empty := scraper.Article{Content: "   "}
	finalize(&empty)
	assert.Equal(t, contentFallback, empty.Content)
}

func TestParagraphFallback(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><div class="content"></div>
<p>short</p>
<p>This paragraph is comfortably longer than twenty characters.</p></body>`)
	assert.Equal(t, "This paragraph is comfortably longer than twenty characters.", paragraphs(doc, aibaseContent))

	none := mustDoc(t, `<body><p>tiny</p></body>`)
	assert.Empty(t, paragraphs(none, aibaseContent))
}

func TestPublishedAtFormats(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Time{
		`<span data-timestamp="1740787200000" class="date"></span>`: time.UnixMilli(1740787200000).UTC(),
		`<span class="date">2025-03-01</span>`:                      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		`<span class="published">March 1, 2025</span>`:              time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		`<span class="date">2025/03/01</span>`:                      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for html, want := range tests {
		got := publishedAt(mustDoc(t, html), aibaseDate)
		require.NotNil(t, got, html)
		assert.Equal(t, want, *got, html)
	}
	assert.Nil(t, publishedAt(mustDoc(t, `<span class="date">yesterday</span>`), aibaseDate))
}

func TestTagsFilterAndLimit(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`<span class="tag"></span><span class="tag">` + strings.Repeat("x", 60) + `</span>`)
	for i := range 15 {
		b.WriteString(`<span class="tag">t` + string(rune('a'+i)) + `</span>`)
	}
	got := tags(mustDoc(t, b.String()), aibaseTags, aibaseMaxTags)
	assert.Len(t, got, aibaseMaxTags)
	assert.Equal(t, "ta", got[0])
}

func TestThumbnailSkipsRelative(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<article><img src="/local.png"><img src="https://cdn.test/a.png"></article>`)
	assert.Equal(t, "https://cdn.test/a.png", thumbnail(doc, aibaseThumbnail))
}

func TestSlugDate(t *testing.T) {
	t.Parallel()

	got := slugDate("24-12-31-year-end")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), *got)
	assert.Nil(t, slugDate("24-13-40-bad"))
	assert.Nil(t, slugDate("weekly"))
}

func TestSmolTitleFallbacks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "From Title", smolTitle(mustDoc(t, `<title>From Title - AINews</title>`), "25-01-01-x"))
	assert.Equal(t, "big model day", smolTitle(mustDoc(t, `<body></body>`), "25-01-01-big-model-day"))
	assert.Equal(t, "Issue 25-01-01", smolTitle(mustDoc(t, `<body></body>`), "25-01-01"))
}
