package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	id := uuid.New()

	batch := []progress.Event{
		{RunID: id, Type: progress.TypeStarted, Source: "aibase", TS: time.Now()},
		{RunID: id, Type: progress.TypeProgress, Source: "aibase", TS: time.Now()},
		progress.Event{RunID: id, Type: progress.TypeFailed, Source: "aibase", TS: time.Now()}.WithMessage("boom"),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.All()
	require.Len(t, entries, 2, "progress events log at debug")
	require.Equal(t, "started", entries[0].ContextMap()["type"])
	require.Equal(t, zap.WarnLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["message"])
}
