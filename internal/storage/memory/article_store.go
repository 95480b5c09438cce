package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

type articleKey struct {
	source     string
	externalID string
}

// ArticleStore keeps articles keyed by source and external id.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[articleKey]scraper.Article
}

// NewArticleStore constructs an ArticleStore, optionally seeded with articles.
func NewArticleStore(seed ...scraper.Article) *ArticleStore {
	s := &ArticleStore{articles: make(map[articleKey]scraper.Article)}
	for _, a := range seed {
		s.articles[keyOf(a.Source, a.ExternalID)] = a
	}
	return s
}

// ArticleExists reports whether the article is stored.
func (s *ArticleStore) ArticleExists(_ context.Context, source, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articles[keyOf(source, externalID)]
	return ok, nil
}

// InsertArticle stores a new article.
func (s *ArticleStore) InsertArticle(_ context.Context, article scraper.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(article.Source, article.ExternalID)
	if _, exists := s.articles[key]; exists {
		return errors.New("article already exists")
	}
	s.articles[key] = article
	return nil
}

// UpdateArticle replaces a stored article.
func (s *ArticleStore) UpdateArticle(_ context.Context, article scraper.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(article.Source, article.ExternalID)
	if _, exists := s.articles[key]; !exists {
		return store.ErrNotFound
	}
	s.articles[key] = article
	return nil
}

// Get returns a stored article.
func (s *ArticleStore) Get(source, externalID string) (scraper.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[keyOf(source, externalID)]
	return a, ok
}

// Len returns the number of stored articles.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}

func keyOf(source, externalID string) articleKey {
	return articleKey{source: source, externalID: externalID}
}
