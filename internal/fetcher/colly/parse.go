package collyfetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

const (
	excerptRunes      = 200
	wordsPerMinute    = 200
	minParagraphRunes = 20
	maxTagRunes       = 50
	contentFallback   = "Content not available"
)

// dateLayouts are tried in order against visible date text.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2006/01/02",
}

// finalize fills the fields derived from content.
func finalize(a *scraper.Article) {
	a.Content = strings.TrimSpace(a.Content)
	if a.Content == "" {
		a.Content = contentFallback
	}
	a.Excerpt = excerpt(a.Content)
	a.ReadTimeMinutes = readTime(a.Content)
	a.ContentHash = contentHash(a.Content)
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return strings.TrimSpace(string(runes[:excerptRunes])) + "..."
}

func readTime(content string) int {
	return max(len(strings.Fields(content))/wordsPerMinute, 1)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func firstText(doc *goquery.Document, selector string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = strings.TrimSpace(s.Text())
		return out == ""
	})
	return out
}

// paragraphs returns the non-empty paragraph texts under the first container
// that has any, falling back to every long-enough paragraph in the page.
func paragraphs(doc *goquery.Document, containers string) string {
	var out []string
	doc.Find(containers).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		out = collectParagraphs(c.Find("p"), 0)
		return len(out) == 0
	})
	if len(out) == 0 {
		out = collectParagraphs(doc.Find("p"), minParagraphRunes)
	}
	return strings.Join(out, "\n\n")
}

func collectParagraphs(sel *goquery.Selection, minRunes int) []string {
	var out []string
	sel.Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text == "" || len([]rune(text)) <= minRunes && minRunes > 0 {
			return
		}
		out = append(out, text)
	})
	return out
}

func tags(doc *goquery.Document, selector string, limit int) []string {
	var out []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text != "" && len([]rune(text)) < maxTagRunes {
			out = append(out, text)
		}
		return len(out) < limit
	})
	return out
}

// publishedAt reads the first parsable date from a datetime attribute, a
// millisecond data-timestamp, or the element text.
func publishedAt(doc *goquery.Document, selector string) *time.Time {
	var out *time.Time
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
				t = t.UTC()
				out = &t
				return false
			}
		}
		if v, ok := s.Attr("data-timestamp"); ok {
			if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				t := time.UnixMilli(ms).UTC()
				out = &t
				return false
			}
		}
		text := strings.TrimSpace(s.Text())
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				t = t.UTC()
				out = &t
				return false
			}
		}
		return true
	})
	return out
}

// viewCount extracts the digits of the first counter, e.g. "1,234 views".
func viewCount(doc *goquery.Document, selector string) int {
	count := 0
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s.Text())
		n, err := strconv.Atoi(digits)
		if err != nil {
			return true
		}
		count = n
		return false
	})
	return count
}

func thumbnail(doc *goquery.Document, selector string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "meta" {
			if v, _ := s.Attr("content"); strings.HasPrefix(v, "http") {
				out = v
				return false
			}
		}
		if v, _ := s.Attr("src"); strings.HasPrefix(v, "http") {
			out = v
			return false
		}
		return true
	})
	return out
}

// linkIDs returns the distinct path segments following prefix in matching
// hrefs, in document order.
func linkIDs(doc *goquery.Document, prefix string, valid func(string) bool) []string {
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href^='" + prefix + "']").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		id := strings.TrimPrefix(href, prefix)
		if i := strings.IndexAny(id, "?#"); i >= 0 {
			id = id[:i]
		}
		id = strings.Trim(id, "/")
		if id == "" || !valid(id) {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	})
	return out
}
