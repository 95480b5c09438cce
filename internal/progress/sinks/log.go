package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
)

// LogSink emits structured logs for progress streams. Lifecycle events log at
// info level and per-article progress at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Type {
		case progress.TypeProgress:
			level = zapcore.DebugLevel
		case progress.TypeFailed:
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("type", string(evt.Type)),
			zap.String("source", evt.Source),
			zap.Int("pages_scraped", evt.PagesScraped),
			zap.Int("articles_found", evt.ArticlesFound),
			zap.Int("articles_new", evt.ArticlesNew),
			zap.Int("articles_updated", evt.ArticlesUpdated),
			zap.Int("articles_failed", evt.ArticlesFailed),
			zap.Int("error_count", evt.ErrorCount),
			zap.Duration("elapsed", evt.Dur),
		}
		if evt.TotalPages != nil {
			fields = append(fields, zap.Int("total_pages", *evt.TotalPages))
		}
		if evt.CurrentArticle != nil {
			fields = append(fields, zap.String("current_article", *evt.CurrentArticle))
		}
		if evt.Message != nil {
			fields = append(fields, zap.String("message", *evt.Message))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
