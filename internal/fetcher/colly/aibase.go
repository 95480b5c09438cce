package collyfetcher

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

const (
	aibaseContent   = "article, .article-content, .content, .post-content, main"
	aibaseDate      = "time, [datetime], .date, .published"
	aibaseAuthor    = ".author, .byline, [rel='author']"
	aibaseTags      = ".tag, .tags a, [rel='tag']"
	aibaseViews     = ".views, .view-count, .read-count"
	aibaseThumbnail = "meta[property='og:image'], .featured-image img, article img"
	aibaseMaxTags   = 10
)

// aibaseSite parses news.aibase.com: numbered listing pages of numeric ids.
type aibaseSite struct{}

func (aibaseSite) listingURL(base string, page int) string {
	if page <= 1 {
		return base + "/news"
	}
	return fmt.Sprintf("%s/news?page=%d", base, page)
}

func (aibaseSite) articleURL(base, id string) string {
	return base + "/news/" + id
}

func (aibaseSite) parseListing(doc *goquery.Document) []string {
	return linkIDs(doc, "/news/", isNumeric)
}

func (aibaseSite) parseArticle(doc *goquery.Document, id, url string) scraper.Article {
	title := firstText(doc, "h1")
	if title == "" {
		title = "Article " + id
	}
	return scraper.Article{
		ExternalID:   id,
		URL:          url,
		Title:        title,
		Content:      paragraphs(doc, aibaseContent),
		Author:       firstText(doc, aibaseAuthor),
		PublishedAt:  publishedAt(doc, aibaseDate),
		ViewCount:    viewCount(doc, aibaseViews),
		ThumbnailURL: thumbnail(doc, aibaseThumbnail),
		Tags:         tags(doc, aibaseTags, aibaseMaxTags),
	}
}

func isNumeric(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}
