package run

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
	"github.com/JakeFAU/ai-news-scraper/internal/storage/memory"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

// fakeFetcher serves canned listings and articles. Errors queued in
// articleErrs are returned in order before the article succeeds; ids in
// missing always return scraper.ErrNotFound.
type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[int][]string
	listErrs    map[int]error
	articleErrs map[string][]error
	missing     map[string]bool
	// block makes Fetch of the named id, or List of page blockPage, wait for
	// ctx or release.
	block     string
	blockPage int
	release   chan struct{}
	blocked   chan struct{}
	// stubborn blocked calls ignore ctx and wait only for release.
	stubborn  bool
	listCalls []int
	fetches   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:       make(map[int][]string),
		listErrs:    make(map[int]error),
		articleErrs: make(map[string][]error),
		missing:     make(map[string]bool),
		release:     make(chan struct{}),
		blocked:     make(chan struct{}, 1),
		fetches:     make(map[string]int),
	}
}

func (f *fakeFetcher) List(ctx context.Context, _ string, item scraper.WorkItem) ([]string, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, item.Page)
	ids := append([]string(nil), f.pages[item.Page]...)
	err := f.listErrs[item.Page]
	blockHere := f.blockPage != 0 && f.blockPage == item.Page
	f.mu.Unlock()
	if blockHere {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, src, id string) (scraper.Article, error) {
	f.mu.Lock()
	f.fetches[id]++
	blockHere := f.block == id
	var err error
	if queued := f.articleErrs[id]; len(queued) > 0 {
		err = queued[0]
		if len(queued) > 1 {
			f.articleErrs[id] = queued[1:]
		}
	}
	missing := f.missing[id]
	f.mu.Unlock()

	if blockHere {
		if err := f.wait(ctx); err != nil {
			return scraper.Article{}, err
		}
	}
	if missing {
		return scraper.Article{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.Article{}, err
	}
	return scraper.Article{
		ExternalID: id,
		Source:     src,
		URL:        "https://example.test/news/" + id,
		Title:      "Article " + id,
		Content:    "body of " + id,
	}, nil
}

func (f *fakeFetcher) wait(ctx context.Context) error {
	select {
	case f.blocked <- struct{}{}:
	default:
	}
	f.mu.Lock()
	stubborn := f.stubborn
	f.mu.Unlock()
	if stubborn {
		<-f.release
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.release:
		return nil
	}
}

func (f *fakeFetcher) listed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.listCalls...)
}

func (f *fakeFetcher) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// recorder captures emitted events in order.
type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	done   chan progress.Event
}

func newRecorder() *recorder {
	return &recorder{done: make(chan progress.Event, 4)}
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	if evt.Type.Terminal() {
		r.done <- evt
	}
}

func (r *recorder) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recorder) waitTerminal(t *testing.T) progress.Event {
	t.Helper()
	select {
	case evt := <-r.done:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return progress.Event{}
	}
}

type fixture struct {
	manager  *Manager
	fetcher  *fakeFetcher
	runs     *memory.RunStore
	articles *memory.ArticleStore
	events   *recorder
}

func newFixture(t *testing.T, cfg Config, seed ...scraper.Article) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:  newFakeFetcher(),
		runs:     memory.NewRunStore(),
		articles: memory.NewArticleStore(seed...),
		events:   newRecorder(),
	}
	if cfg.Retry == nil {
		cfg.Retry = scraper.NewExponentialRetryPolicy(2, time.Millisecond, 2*time.Millisecond)
	}
	mgr, err := NewManager(cfg, Deps{
		Registry: source.DefaultRegistry(source.DefaultLimits()),
		Fetcher:  f.fetcher,
		Runs:     f.runs,
		Articles: f.articles,
		Emitter:  f.events,
	})
	require.NoError(t, err)
	f.manager = mgr
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return f
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func int64p(v int64) *int64 { return &v }

// stallingArticleRepo blocks InsertArticle until release and then fails it.
type stallingArticleRepo struct {
	store.ArticleRepository
	entered chan struct{}
	release chan struct{}
	err     error
	once    sync.Once
}

func (r *stallingArticleRepo) InsertArticle(context.Context, scraper.Article) error {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.err
}
