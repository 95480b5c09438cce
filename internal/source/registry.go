package source

import (
	"sort"
	"strings"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// Source identifiers registered by DefaultRegistry.
const (
	AIBase = "aibase"
	SmolAI = "smolai"
)

// Descriptor describes one scrape source.
type Descriptor struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	BaseURL string         `json:"base_url"`
	Aliases []string       `json:"aliases,omitempty"`
	Modes   []scraper.Mode `json:"modes"`
}

// DefaultMode is the first registered mode.
func (d Descriptor) DefaultMode() scraper.Mode {
	if len(d.Modes) == 0 {
		return ""
	}
	return d.Modes[0]
}

// Supports reports whether the source can run in mode.
func (d Descriptor) Supports(mode scraper.Mode) bool {
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Limits bounds what Resolve accepts.
type Limits struct {
	DefaultMaxPages int
	MaxRange        int64
	DefaultSource   string
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		DefaultMaxPages: 100,
		MaxRange:        50000,
		DefaultSource:   AIBase,
	}
}

// Registry is a read-only table of source descriptors.
type Registry struct {
	byKey  map[string]Descriptor
	all    []Descriptor
	limits Limits
}

// NewRegistry indexes descriptors by id and alias. Keys are case-insensitive.
func NewRegistry(limits Limits, descriptors ...Descriptor) *Registry {
	def := DefaultLimits()
	if limits.DefaultMaxPages <= 0 {
		limits.DefaultMaxPages = def.DefaultMaxPages
	}
	if limits.MaxRange <= 0 {
		limits.MaxRange = def.MaxRange
	}
	if limits.DefaultSource == "" && len(descriptors) > 0 {
		limits.DefaultSource = descriptors[0].ID
	}
	r := &Registry{byKey: make(map[string]Descriptor), limits: limits}
	for _, d := range descriptors {
		r.all = append(r.all, d)
		r.byKey[strings.ToLower(d.ID)] = d
		for _, alias := range d.Aliases {
			r.byKey[strings.ToLower(alias)] = d
		}
	}
	sort.Slice(r.all, func(i, j int) bool { return r.all[i].ID < r.all[j].ID })
	return r
}

// DefaultRegistry returns the registry of supported news sources.
func DefaultRegistry(limits Limits) *Registry {
	return NewRegistry(limits,
		Descriptor{
			ID:      AIBase,
			Name:    "AIBase",
			BaseURL: "https://news.aibase.com",
			Aliases: []string{"aibase.com"},
			Modes:   []scraper.Mode{scraper.ModePagination, scraper.ModeRange},
		},
		Descriptor{
			ID:      SmolAI,
			Name:    "smol.ai",
			BaseURL: "https://news.smol.ai",
			Aliases: []string{"smol.ai", "smol"},
			Modes:   []scraper.Mode{scraper.ModeArchive},
		},
	)
}

// Lookup finds a descriptor by id or alias.
func (r *Registry) Lookup(key string) (Descriptor, bool) {
	d, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]
	return d, ok
}

// List returns all descriptors ordered by id.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.all))
	copy(out, r.all)
	return out
}

// Limits returns the configured request limits.
func (r *Registry) Limits() Limits {
	return r.limits
}
