package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://news.aibase.com/news", "news.aibase.com"},
		{"standard https", "https://News.Smol.AI/issues", "news.smol.ai"},
		{"no scheme", "news.aibase.com/news/1", "news.aibase.com"},
		{"just host", "news.smol.ai", "news.smol.ai"},
		{"host with port", "127.0.0.1:3001", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if scraperFetchTotal == nil || scraperFetchBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		scraperRateLimitDelaysSeconds == nil || scraperProgressObservers == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperFetchTotal.WithLabelValues("fetch.test", "article", "ok"))
	ObserveFetch("https://fetch.test/news/1", "article", "ok", 512)
	ObserveFetch("https://fetch.test/news/2", "article", "ok", 0)

	if got := testutil.ToFloat64(scraperFetchTotal.WithLabelValues("fetch.test", "article", "ok")); got != before+2 {
		t.Errorf("expected fetch counter %f, got %f", before+2, got)
	}
	if got := testutil.ToFloat64(scraperFetchBytesTotal.WithLabelValues("fetch.test")); got < 512 {
		t.Errorf("expected at least 512 bytes recorded, got %f", got)
	}
}

func TestObserverGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperProgressObservers)
	IncObservers()
	IncObservers()
	DecObservers()
	if got := testutil.ToFloat64(scraperProgressObservers); got != before+1 {
		t.Errorf("expected observers %f, got %f", before+1, got)
	}
	DecObservers()
}

func TestObserveRateLimitDelay(t *testing.T) {
	Init()
	ObserveRateLimitDelay("delay.test", 150*time.Millisecond)
	if val := testutil.CollectAndCount(scraperRateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://news.aibase.com", "https://news.smol.ai", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
