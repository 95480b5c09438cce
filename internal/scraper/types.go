package scraper

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScrapeType selects how aggressively a run walks its source.
type ScrapeType string

// Scrape types accepted by StartRun.
const (
	ScrapeTypeFull        ScrapeType = "full"
	ScrapeTypeIncremental ScrapeType = "incremental"
	ScrapeTypeSingle      ScrapeType = "single"
)

// Valid reports whether t is a known scrape type.
func (t ScrapeType) Valid() bool {
	switch t {
	case ScrapeTypeFull, ScrapeTypeIncremental, ScrapeTypeSingle:
		return true
	default:
		return false
	}
}

// RunStatus represents the lifecycle state of a scrape run.
type RunStatus string

// Run status values persisted in run history.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Mode is the dispatch strategy used to enumerate work for a source.
type Mode string

// Supported dispatch modes.
const (
	ModePagination Mode = "pagination"
	ModeRange      Mode = "range"
	ModeArchive    Mode = "archive"
)

// Counters tracks the monotonic progress figures of a run.
type Counters struct {
	TotalPages      *int `json:"total_pages"`
	PagesScraped    int  `json:"pages_scraped"`
	ArticlesFound   int  `json:"articles_found"`
	ArticlesNew     int  `json:"articles_new"`
	ArticlesUpdated int  `json:"articles_updated"`
	ArticlesFailed  int  `json:"articles_failed"`
	ErrorCount      int  `json:"error_count"`
}

// Delta is a set of non-negative counter increments.
type Delta struct {
	PagesScraped    int
	ArticlesFound   int
	ArticlesNew     int
	ArticlesUpdated int
	ArticlesFailed  int
	ErrorCount      int
	// CurrentArticle names the item that produced the delta, if any.
	CurrentArticle string
	// LastError replaces the run's last_error when non-empty.
	LastError string
}

// Negative reports whether any increment is below zero.
func (d Delta) Negative() bool {
	return d.PagesScraped < 0 || d.ArticlesFound < 0 || d.ArticlesNew < 0 ||
		d.ArticlesUpdated < 0 || d.ArticlesFailed < 0 || d.ErrorCount < 0
}

// Apply adds the delta to the counters.
func (c *Counters) Apply(d Delta) {
	c.PagesScraped += d.PagesScraped
	c.ArticlesFound += d.ArticlesFound
	c.ArticlesNew += d.ArticlesNew
	c.ArticlesUpdated += d.ArticlesUpdated
	c.ArticlesFailed += d.ArticlesFailed
	c.ErrorCount += d.ErrorCount
}

// Clone returns a deep copy of the counters.
func (c Counters) Clone() Counters {
	out := c
	if c.TotalPages != nil {
		v := *c.TotalPages
		out.TotalPages = &v
	}
	return out
}

// RunConfig holds the request parameters persisted alongside a run.
type RunConfig struct {
	MaxPages      int   `json:"max_pages,omitempty"`
	StartID       int64 `json:"start_id,omitempty"`
	EndID         int64 `json:"end_id,omitempty"`
	ForceRescrape bool  `json:"force_rescrape"`
}

// Run is one execution of a scrape over a source.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	ScrapeType ScrapeType `json:"scrape_type"`
	Source     string     `json:"source"`
	Mode       Mode       `json:"mode"`
	Status     RunStatus  `json:"status"`
	Counters
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	Config      RunConfig  `json:"config"`
}

// Clone returns a deep copy of the run.
func (r Run) Clone() Run {
	out := r
	out.Counters = r.Counters.Clone()
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.LastError != nil {
		s := *r.LastError
		out.LastError = &s
	}
	return out
}

// Request is an operator request to start a run.
type Request struct {
	ScrapeType    ScrapeType `json:"scrape_type"`
	Source        string     `json:"source"`
	Mode          Mode       `json:"mode,omitempty"`
	MaxPages      int        `json:"max_pages,omitempty"`
	StartID       *int64     `json:"start_id,omitempty"`
	EndID         *int64     `json:"end_id,omitempty"`
	ForceRescrape bool       `json:"force_rescrape"`
}

// Article is a scraped news item.
type Article struct {
	ExternalID      string     `json:"external_id"`
	URL             string     `json:"url"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Excerpt         string     `json:"excerpt"`
	Author          string     `json:"author,omitempty"`
	Source          string     `json:"source"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ViewCount       int        `json:"view_count"`
	ReadTimeMinutes int        `json:"read_time_minutes"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	ContentHash     string     `json:"content_hash"`
	Tags            []string   `json:"tags,omitempty"`
	RawURI          string     `json:"raw_uri,omitempty"`
}

// WorkKind identifies what a WorkItem points at.
type WorkKind string

// Work item kinds.
const (
	WorkListingPage WorkKind = "page"
	WorkArticleID   WorkKind = "id"
	WorkArchive     WorkKind = "archive"
)

// WorkItem is one unit of work yielded by a source strategy.
type WorkItem struct {
	Kind WorkKind
	// Page is the 1-based listing page for WorkListingPage and WorkArchive.
	Page int
	// ID is the article identifier for WorkArticleID.
	ID int64
}

// Listing reports whether the item resolves to a list of article ids.
func (w WorkItem) Listing() bool {
	return w.Kind == WorkListingPage || w.Kind == WorkArchive
}

func (w WorkItem) String() string {
	switch w.Kind {
	case WorkArticleID:
		return fmt.Sprintf("id:%d", w.ID)
	case WorkArchive:
		return fmt.Sprintf("archive:%d", w.Page)
	default:
		return fmt.Sprintf("page:%d", w.Page)
	}
}
