package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// Type denotes the kind of progress update.
type Type string

// Supported progress types.
const (
	TypeIdle      Type = "idle"
	TypeStarted   Type = "started"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// Terminal reports whether the type ends a run.
func (t Type) Terminal() bool {
	return t == TypeCompleted || t == TypeFailed || t == TypeCancelled
}

// TypeForStatus maps a terminal run status to its event type.
func TypeForStatus(status scraper.RunStatus) Type {
	switch status {
	case scraper.RunStatusCompleted:
		return TypeCompleted
	case scraper.RunStatusFailed:
		return TypeFailed
	case scraper.RunStatusCancelled:
		return TypeCancelled
	default:
		return TypeProgress
	}
}

// Event is an immutable snapshot of a run's progress.
type Event struct {
	RunID  uuid.UUID         `json:"run_id,omitzero"`
	Type   Type              `json:"progress_type"`
	Source string            `json:"source,omitempty"`
	Status scraper.RunStatus `json:"status,omitempty"`
	scraper.Counters
	CurrentArticle *string   `json:"current_article"`
	Message        *string   `json:"message"`
	TS             time.Time `json:"ts"`
	// Dur is the elapsed run time at emission.
	Dur time.Duration `json:"-"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	switch e.Type {
	case TypeIdle:
		return nil
	case TypeStarted, TypeProgress, TypeCompleted, TypeFailed, TypeCancelled:
	default:
		return fmt.Errorf("unknown progress type %q", e.Type)
	}
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	c := e.Counters
	if c.PagesScraped < 0 || c.ArticlesFound < 0 || c.ArticlesNew < 0 ||
		c.ArticlesUpdated < 0 || c.ArticlesFailed < 0 || c.ErrorCount < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// FromRun builds an event from a run snapshot.
func FromRun(run scraper.Run, typ Type, now time.Time) Event {
	evt := Event{
		RunID:    run.ID,
		Type:     typ,
		Source:   run.Source,
		Status:   run.Status,
		Counters: run.Counters.Clone(),
		TS:       now.UTC(),
	}
	if !run.StartedAt.IsZero() && now.After(run.StartedAt) {
		evt.Dur = now.Sub(run.StartedAt)
	}
	if run.LastError != nil && typ == TypeFailed {
		msg := *run.LastError
		evt.Message = &msg
	}
	return evt
}

// Idle returns the replay event sent when no run is active.
func Idle(now time.Time) Event {
	msg := "no scrape run is active"
	return Event{Type: TypeIdle, Message: &msg, TS: now.UTC()}
}

// WithArticle returns a copy of e naming the current article.
func (e Event) WithArticle(externalID string) Event {
	if externalID != "" {
		e.CurrentArticle = &externalID
	}
	return e
}

// WithMessage returns a copy of e carrying msg.
func (e Event) WithMessage(msg string) Event {
	if msg != "" {
		e.Message = &msg
	}
	return e
}
