package collyfetcher

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

const (
	smolContent = "article.content-area"
	smolTags    = "[data-pagefind-filter='company'], [data-pagefind-filter='topic']"
	smolAuthor  = "smol.ai"
	smolMaxTags = 20
)

// smolSite parses news.smol.ai: a single newest-first archive of issue slugs
// shaped YY-MM-DD-title.
type smolSite struct{}

func (smolSite) listingURL(base string, page int) string {
	if page > 1 {
		return ""
	}
	return base + "/issues"
}

func (smolSite) articleURL(base, id string) string {
	return base + "/issues/" + id
}

func (smolSite) parseListing(doc *goquery.Document) []string {
	return linkIDs(doc, "/issues/", func(slug string) bool {
		return slug != "issues" && !strings.Contains(slug, "/")
	})
}

func (smolSite) parseArticle(doc *goquery.Document, id, url string) scraper.Article {
	return scraper.Article{
		ExternalID:  id,
		URL:         url,
		Title:       smolTitle(doc, id),
		Content:     smolBody(doc),
		Author:      smolAuthor,
		PublishedAt: slugDate(id),
		Tags:        tags(doc, smolTags, smolMaxTags),
	}
}

func smolTitle(doc *goquery.Document, slug string) string {
	if title := firstText(doc, "h1"); title != "" {
		return title
	}
	if title := firstText(doc, "title"); title != "" {
		title, _, _ = strings.Cut(title, " - ")
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	parts := strings.Split(slug, "-")
	if len(parts) > 3 {
		return strings.Join(parts[3:], " ")
	}
	return "Issue " + slug
}

// smolBody keeps the issue markup, dropping blank lines and indentation.
func smolBody(doc *goquery.Document) string {
	var body string
	doc.Find(smolContent).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		html, err := s.Html()
		if err != nil || strings.TrimSpace(html) == "" {
			return true
		}
		var lines []string
		for line := range strings.Lines(html) {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		body = strings.Join(lines, "\n")
		return false
	})
	if body != "" {
		return body
	}
	return strings.Join(collectParagraphs(doc.Find("p"), minParagraphRunes), "\n\n")
}

// slugDate parses the YY-MM-DD prefix of an issue slug.
func slugDate(slug string) *time.Time {
	parts := strings.SplitN(slug, "-", 4)
	if len(parts) < 3 {
		return nil
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	if year < 100 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	return &t
}
