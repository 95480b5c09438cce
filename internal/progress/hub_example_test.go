package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{
		RunID: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		TS:    time.Unix(0, 0),
		Type:  TypeStarted,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleHub_Attach shows an observer joining mid-run.
func ExampleHub_Attach() {
	hub := NewHub(Config{})
	defer func() { _ = hub.Close(context.Background()) }()

	id := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	hub.Emit(Event{
		RunID:    id,
		Type:     TypeProgress,
		Counters: scraper.Counters{PagesScraped: 2, ArticlesNew: 4},
		TS:       time.Unix(0, 0),
	})

	sub := hub.Attach()
	defer sub.Close()
	replay := <-sub.Events()
	fmt.Printf("%s pages=%d new=%d\n", replay.Type, replay.PagesScraped, replay.ArticlesNew)
	// Output:
	// progress pages=2 new=4
}

// ExampleSink implements a custom Sink that totals new articles.
func ExampleSink() {
	var total int
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Type.Terminal() {
				total = evt.ArticlesNew
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	hub.Emit(Event{
		RunID:    uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		TS:       time.Unix(0, 0),
		Type:     TypeCompleted,
		Counters: scraper.Counters{ArticlesNew: 6},
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("articles stored: %d\n", total)
	// Output:
	// articles stored: 6
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
