package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/config"
	"github.com/JakeFAU/ai-news-scraper/internal/server"
)

const testArticle = `<html><body>
<h1>Open weights model tops leaderboard</h1>
<article><p>The release includes weights, evals and a permissive license.</p></article>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /news", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			fmt.Fprint(w, `<a href="/news/7">seven</a><a href="/news/8">eight</a>`)
			return
		}
		fmt.Fprint(w, `<html></html>`)
	})
	mux.HandleFunc("GET /news/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "9" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, testArticle)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, siteURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
scraper:
  rate_limit: 0
  backoff_initial_ms: 1
  backoff_max_ms: 5
  base_urls:
    aibase: %s
progress:
  log_enabled: false
`, siteURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// Tests in this file replace the package-level factory and must not run in parallel.
func useTestApp(t *testing.T) {
	t.Helper()
	orig := buildApp
	buildApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
		return server.Build(ctx, cfg,
			server.WithLogger(zap.NewNop()),
			server.WithRegisterer(prometheus.NewRegistry()),
		)
	}
	t.Cleanup(func() { buildApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommandCompletes(t *testing.T) {
	useTestApp(t)
	path := writeConfig(t, newSite(t).URL)

	out, err := execute(t, "scrape", "--config", path, "--source", "aibase", "--type", "full", "--max-pages", "2")

	require.NoError(t, err, out)
	require.Contains(t, out, "started")
	require.Contains(t, out, "completed")
	require.Contains(t, out, "new=2")
}

func TestScrapeCommandRange(t *testing.T) {
	useTestApp(t)
	path := writeConfig(t, newSite(t).URL)

	out, err := execute(t, "scrape", "--config", path, "--start-id", "8", "--end-id", "9")

	require.NoError(t, err, out)
	require.Contains(t, out, "completed")
	require.Contains(t, out, "new=1")
	require.Contains(t, out, "failed=1")
}

func TestScrapeCommandRejectsUnknownSource(t *testing.T) {
	useTestApp(t)
	path := writeConfig(t, newSite(t).URL)

	_, err := execute(t, "scrape", "--config", path, "--source", "nowhere")

	require.ErrorContains(t, err, "unknown source")
}

func TestScrapeCommandRejectsBadConfig(t *testing.T) {
	useTestApp(t)

	_, err := execute(t, "scrape", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.ErrorContains(t, err, "load config")
}

func TestServeRejectsArgs(t *testing.T) {
	_, err := execute(t, "serve", "extra")
	require.Error(t, err)
}
