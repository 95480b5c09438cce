package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

// RunSummary is the payload published when a run finishes.
type RunSummary struct {
	RunID  uuid.UUID         `json:"run_id"`
	Source string            `json:"source"`
	Status scraper.RunStatus `json:"status"`
	scraper.Counters
	Message    *string   `json:"message,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NotifySink publishes a RunSummary for every terminal event so downstream
// consumers (indexers, digests) can react to fresh articles.
type NotifySink struct {
	publisher scraper.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink constructs a NotifySink publishing to topic.
func NewNotifySink(publisher scraper.Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes one summary per terminal event in the batch. Publish
// errors are joined and returned after the whole batch is attempted.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Type.Terminal() {
			continue
		}
		summary := RunSummary{
			RunID:      evt.RunID,
			Source:     evt.Source,
			Status:     evt.Status,
			Counters:   evt.Counters,
			Message:    evt.Message,
			FinishedAt: evt.TS,
			DurationMs: evt.Dur.Milliseconds(),
		}
		id, err := s.publisher.Publish(ctx, s.topic, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish run summary %s: %w", evt.RunID, err))
			continue
		}
		s.logger.Debug("run summary published",
			zap.String("run_id", evt.RunID.String()),
			zap.String("message_id", id),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}

// Attributes returns Pub/Sub message attributes for filtering subscriptions.
func (r RunSummary) Attributes() map[string]string {
	return map[string]string{
		"run_id": r.RunID.String(),
		"source": r.Source,
		"status": string(r.Status),
	}
}
