// Package collyfetcher implements scraper.Fetcher for the supported news
// sites using gocolly for transport and goquery for extraction.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/metrics"
	"github.com/JakeFAU/ai-news-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxRetryAfter    = 5 * time.Minute
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds one HTTP exchange. The run engine applies its own
	// per-fetch deadline on top.
	Timeout time.Duration
	// BaseURLs overrides the site root by source id.
	BaseURLs map[string]string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter paces requests through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRawStore archives every fetched article page to store.
func WithRawStore(store scraper.BlobStore) Option {
	return func(f *Fetcher) { f.raw = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.transport = rt
		}
	}
}

type site interface {
	listingURL(base string, page int) string
	articleURL(base, id string) string
	parseListing(doc *goquery.Document) []string
	parseArticle(doc *goquery.Document, id, url string) scraper.Article
}

type siteEntry struct {
	base string
	site site
}

// Fetcher implements scraper.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	raw           scraper.BlobStore
	logger        *zap.Logger
	sites         map[string]siteEntry
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	url    string
	status int
	header http.Header
	body   []byte
}

// New builds a Fetcher for every source in registry that has a parser.
func New(cfg Config, registry *source.Registry, opts ...Option) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true

	f := &Fetcher{
		cfg:           cfg,
		transport:     newHTTPTransport(),
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{}),
		logger:        zap.NewNop(),
		sites:         make(map[string]siteEntry),
	}
	for _, opt := range opts {
		opt(f)
	}

	parsers := map[string]site{
		source.AIBase: aibaseSite{},
		source.SmolAI: smolSite{},
	}
	for _, desc := range registry.List() {
		parser, ok := parsers[desc.ID]
		if !ok {
			continue
		}
		base := desc.BaseURL
		if override := cfg.BaseURLs[desc.ID]; override != "" {
			base = override
		}
		f.sites[desc.ID] = siteEntry{base: strings.TrimRight(base, "/"), site: parser}
	}
	return f
}

// List returns the article ids on one listing or archive page. A page the
// site does not have yields no ids.
func (f *Fetcher) List(ctx context.Context, sourceID string, item scraper.WorkItem) ([]string, error) {
	entry, err := f.site(sourceID)
	if err != nil {
		return nil, err
	}
	if !item.Listing() {
		return nil, &scraper.FatalRunError{Err: fmt.Errorf("work item %s is not a listing", item)}
	}
	target := entry.site.listingURL(entry.base, item.Page)
	if target == "" {
		return nil, nil
	}
	p, err := f.get(ctx, target, "listing")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, scraper.Transient(fmt.Errorf("parse listing %s: %w", target, err))
	}
	return entry.site.parseListing(doc), nil
}

// Fetch downloads and parses one article.
func (f *Fetcher) Fetch(ctx context.Context, sourceID, externalID string) (scraper.Article, error) {
	entry, err := f.site(sourceID)
	if err != nil {
		return scraper.Article{}, err
	}
	target := entry.site.articleURL(entry.base, url.PathEscape(externalID))
	p, err := f.get(ctx, target, "article")
	if err != nil {
		return scraper.Article{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return scraper.Article{}, scraper.Transient(fmt.Errorf("parse article %s: %w", target, err))
	}

	article := entry.site.parseArticle(doc, externalID, target)
	article.Source = sourceID
	finalize(&article)
	article.RawURI = f.archive(ctx, sourceID, externalID, p.body)
	return article, nil
}

func (f *Fetcher) site(sourceID string) (siteEntry, error) {
	entry, ok := f.sites[sourceID]
	if !ok {
		return siteEntry{}, &scraper.FatalRunError{Err: &scraper.UnknownSourceError{Source: sourceID}}
	}
	return entry, nil
}

// archive stores the raw page. Failures are logged and never fail the fetch.
func (f *Fetcher) archive(ctx context.Context, sourceID, externalID string, body []byte) string {
	if f.raw == nil {
		return ""
	}
	path := fmt.Sprintf("%s/%s.html", sourceID, url.PathEscape(externalID))
	uri, err := f.raw.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		f.logger.Warn("raw page archive failed",
			zap.String("source", sourceID),
			zap.String("article", externalID),
			zap.Error(err),
		)
		return ""
	}
	return uri
}

// get performs one rate-limited GET and classifies the outcome.
func (f *Fetcher) get(ctx context.Context, target, kind string) (page, error) {
	if err := f.limiter.Wait(ctx, target); err != nil {
		if ctx.Err() != nil {
			return page{}, fmt.Errorf("fetch %s: %w", target, ctx.Err())
		}
		// The limiter refuses waits that would overrun the deadline.
		return page{}, scraper.Transient(fmt.Errorf("fetch %s: %w", target, err))
	}

	var (
		result   page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		if ctx.Err() != nil {
			return page{}, fmt.Errorf("fetch %s: %w", target, ctx.Err())
		}
		metrics.ObserveFetch(target, kind, "transient", 0)
		return page{}, scraper.Transient(fmt.Errorf("fetch %s: %w", target, err))
	}

	err := classify(target, result.status, result.header, time.Now())
	metrics.ObserveFetch(target, kind, outcome(err), len(result.body))
	f.logger.Debug("fetched page",
		zap.String("url", target),
		zap.Int("status", result.status),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		return page{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(&contextTransport{base: f.transport, ctx: ctx})
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.header = r.Headers.Clone()
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// classify maps an HTTP status onto the scraper error taxonomy.
func classify(target string, status int, header http.Header, now time.Time) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &scraper.TransientFetchError{
			Err:        fmt.Errorf("%s: HTTP %d", target, status),
			RetryAfter: retryAfter(header.Get("Retry-After"), now),
		}
	case status >= 500:
		return scraper.Transient(fmt.Errorf("%s: HTTP %d", target, status))
	case status >= 400:
		return fmt.Errorf("%s: HTTP %d: %w", target, status, scraper.ErrNotFound)
	default:
		return scraper.Transient(fmt.Errorf("%s: unexpected HTTP %d", target, status))
	}
}

// retryAfter parses delta-seconds or an HTTP date, capped at maxRetryAfter.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
	}
	return min(max(d, 0), maxRetryAfter)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case scraper.IsTransient(err):
		return "transient"
	default:
		return "not_found"
	}
}
