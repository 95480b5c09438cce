package source

import (
	"math"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// Strategy yields the work items of one run. Implementations are owned by a
// single drive loop and are not safe for concurrent use.
type Strategy interface {
	// Next returns the next work item, or false when there is none.
	Next() (scraper.WorkItem, bool)
	// Exhaust marks the listing as finished after an empty page.
	Exhaust()
	// Total is the planned number of work items, nil when unknown.
	Total() *int
}

// PaginationStrategy walks listing pages 1..maxPages.
type PaginationStrategy struct {
	maxPages  int
	next      int
	exhausted bool
}

// NewPaginationStrategy bounds the walk at maxPages.
func NewPaginationStrategy(maxPages int) *PaginationStrategy {
	return &PaginationStrategy{maxPages: maxPages, next: 1}
}

// Next implements Strategy.
func (s *PaginationStrategy) Next() (scraper.WorkItem, bool) {
	if s.exhausted || s.next > s.maxPages {
		return scraper.WorkItem{}, false
	}
	item := scraper.WorkItem{Kind: scraper.WorkListingPage, Page: s.next}
	s.next++
	return item, true
}

// Exhaust implements Strategy.
func (s *PaginationStrategy) Exhaust() { s.exhausted = true }

// Total implements Strategy.
func (s *PaginationStrategy) Total() *int {
	total := s.maxPages
	return &total
}

// RangeStrategy walks article ids start..end inclusive.
type RangeStrategy struct {
	start, end int64
	next       int64
	exhausted  bool
}

// NewRangeStrategy returns a cursor over [start, end].
func NewRangeStrategy(start, end int64) *RangeStrategy {
	return &RangeStrategy{start: start, end: end, next: start}
}

// Next implements Strategy.
func (s *RangeStrategy) Next() (scraper.WorkItem, bool) {
	if s.exhausted || s.next > s.end {
		return scraper.WorkItem{}, false
	}
	item := scraper.WorkItem{Kind: scraper.WorkArticleID, ID: s.next}
	if s.next == s.end {
		// Incrementing past math.MaxInt64 would wrap.
		s.exhausted = true
	} else {
		s.next++
	}
	return item, true
}

// Exhaust implements Strategy.
func (s *RangeStrategy) Exhaust() { s.exhausted = true }

// Total implements Strategy.
func (s *RangeStrategy) Total() *int {
	if s.end < s.start {
		total := 0
		return &total
	}
	span := uint64(s.end - s.start)
	if span >= math.MaxInt {
		total := math.MaxInt
		return &total
	}
	total := int(span) + 1
	return &total
}

// ArchiveStrategy walks the index pages of a newest-first archive. The number
// of index pages is not known up front.
type ArchiveStrategy struct {
	PaginationStrategy
}

// NewArchiveStrategy bounds the walk at maxPages index pages.
func NewArchiveStrategy(maxPages int) *ArchiveStrategy {
	return &ArchiveStrategy{PaginationStrategy: PaginationStrategy{maxPages: maxPages, next: 1}}
}

// Next implements Strategy.
func (s *ArchiveStrategy) Next() (scraper.WorkItem, bool) {
	item, ok := s.PaginationStrategy.Next()
	item.Kind = scraper.WorkArchive
	return item, ok
}

// Total implements Strategy.
func (s *ArchiveStrategy) Total() *int { return nil }
