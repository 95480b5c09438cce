package source

import (
	"fmt"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// StopRule is the early-termination condition applied by the drive loop.
type StopRule int

const (
	// StopNever runs until the strategy is exhausted.
	StopNever StopRule = iota
	// StopOnKnownBatch ends the run after a listing batch whose articles
	// were all already stored.
	StopOnKnownBatch
	// StopOnFirstKnown ends the run at the first already-stored article.
	// Used for newest-first archives.
	StopOnFirstKnown
)

func (s StopRule) String() string {
	switch s {
	case StopOnKnownBatch:
		return "known_batch"
	case StopOnFirstKnown:
		return "first_known"
	default:
		return "never"
	}
}

// Plan is a validated run request.
type Plan struct {
	Source     Descriptor
	ScrapeType scraper.ScrapeType
	Mode       scraper.Mode
	Config     scraper.RunConfig
	StopRule   StopRule
}

// NewStrategy returns a fresh cursor over the plan's work items.
func (p Plan) NewStrategy() Strategy {
	single := p.ScrapeType == scraper.ScrapeTypeSingle
	switch p.Mode {
	case scraper.ModeRange:
		end := p.Config.EndID
		if single {
			end = p.Config.StartID
		}
		return NewRangeStrategy(p.Config.StartID, end)
	case scraper.ModeArchive:
		if single {
			return NewArchiveStrategy(1)
		}
		return NewArchiveStrategy(p.Config.MaxPages)
	default:
		if single {
			return NewPaginationStrategy(1)
		}
		return NewPaginationStrategy(p.Config.MaxPages)
	}
}

// Resolve validates a request against the registry and returns its plan.
func (r *Registry) Resolve(req scraper.Request) (Plan, error) {
	if req.ScrapeType == "" {
		req.ScrapeType = scraper.ScrapeTypeIncremental
	}
	if req.Source == "" {
		req.Source = r.limits.DefaultSource
	}
	desc, ok := r.Lookup(req.Source)
	if !ok {
		return Plan{}, &scraper.UnknownSourceError{Source: req.Source}
	}
	if !req.ScrapeType.Valid() {
		return Plan{}, &scraper.UnsupportedModeError{
			Source: desc.ID,
			Mode:   fmt.Sprintf("scrape type %q", req.ScrapeType),
		}
	}

	mode := req.Mode
	if mode == "" {
		mode = desc.DefaultMode()
		if req.StartID != nil || req.EndID != nil {
			mode = scraper.ModeRange
		}
	}
	if !desc.Supports(mode) {
		return Plan{}, &scraper.UnsupportedModeError{Source: desc.ID, Mode: string(mode)}
	}

	plan := Plan{
		Source:     desc,
		ScrapeType: req.ScrapeType,
		Mode:       mode,
		Config:     scraper.RunConfig{ForceRescrape: req.ForceRescrape},
	}

	switch mode {
	case scraper.ModeRange:
		if err := r.resolveRange(req, &plan); err != nil {
			return Plan{}, err
		}
	default:
		plan.Config.MaxPages = req.MaxPages
		if plan.Config.MaxPages <= 0 {
			plan.Config.MaxPages = r.limits.DefaultMaxPages
		}
	}

	if req.ScrapeType == scraper.ScrapeTypeIncremental {
		switch mode {
		case scraper.ModePagination:
			plan.StopRule = StopOnKnownBatch
		case scraper.ModeArchive:
			plan.StopRule = StopOnFirstKnown
		}
	}
	return plan, nil
}

func (r *Registry) resolveRange(req scraper.Request, plan *Plan) error {
	if req.StartID == nil {
		return &scraper.InvalidRangeError{Reason: "start_id is required"}
	}
	start := *req.StartID
	end := start
	switch {
	case req.ScrapeType == scraper.ScrapeTypeSingle:
		// A single scrape fetches start_id only; end_id is ignored.
	case req.EndID != nil:
		end = *req.EndID
	default:
		return &scraper.InvalidRangeError{StartID: start, Reason: "end_id is required"}
	}
	switch {
	case start < 0 || end < 0:
		return &scraper.InvalidRangeError{StartID: start, EndID: end, Reason: "ids must be non-negative"}
	case start > end:
		return &scraper.InvalidRangeError{StartID: start, EndID: end, Reason: "start_id must not exceed end_id"}
	case end-start >= r.limits.MaxRange:
		return &scraper.InvalidRangeError{
			StartID: start,
			EndID:   end,
			Reason:  fmt.Sprintf("range exceeds %d articles", r.limits.MaxRange),
		}
	}
	plan.Config.StartID = start
	plan.Config.EndID = end
	return nil
}
