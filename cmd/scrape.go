package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/server"
)

type scrapeOptions struct {
	source     string
	scrapeType string
	mode       string
	maxPages   int
	startID    int64
	endID      int64
	force      bool
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Perform one scrape run in the foreground",
		Long: `Runs a single scrape, printing progress as it goes. The command exits
non-zero when the run fails or is interrupted.`,
		Example: `  scraperd scrape --source aibase --type incremental
  scraperd scrape --source aibase --start-id 100 --end-id 200 --force
  scraperd scrape --source smol.ai --type full --max-pages 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := opts.request(cmd)
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = app.Close(closeCtx)
			}()
			return scrape(ctx, app, req, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.source, "source", "", "source id or alias (default aibase)")
	flags.StringVar(&opts.scrapeType, "type", "", "scrape type: full, incremental, single (default incremental)")
	flags.StringVar(&opts.mode, "mode", "", "dispatch mode: pagination, range, archive (default per source)")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "listing pages to walk (default from config)")
	flags.Int64Var(&opts.startID, "start-id", 0, "first article id for range mode")
	flags.Int64Var(&opts.endID, "end-id", 0, "last article id for range mode")
	flags.BoolVar(&opts.force, "force", false, "re-fetch articles that are already stored")

	return cmd
}

// request maps flags onto a run request. Range ids are only sent when set.
func (o *scrapeOptions) request(cmd *cobra.Command) scraper.Request {
	req := scraper.Request{
		ScrapeType:    scraper.ScrapeType(o.scrapeType),
		Source:        o.source,
		Mode:          scraper.Mode(o.mode),
		MaxPages:      o.maxPages,
		ForceRescrape: o.force,
	}
	if cmd.Flags().Changed("start-id") {
		start := o.startID
		req.StartID = &start
	}
	if cmd.Flags().Changed("end-id") {
		end := o.endID
		req.EndID = &end
	}
	return req
}

// scrape starts req, prints its events until it finishes, and reports the
// final status from run history.
func scrape(ctx context.Context, app *server.App, req scraper.Request, out io.Writer) error {
	manager := app.Manager()
	sub := app.Progress().Attach()
	defer sub.Close()

	id, err := manager.StartRun(ctx, req)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	fmt.Fprintf(out, "run %s started\n", id)

	stopping := false
	events := sub.Events()
	for events != nil {
		select {
		case <-ctx.Done():
			if !stopping {
				stopping = true
				fmt.Fprintln(out, "interrupt received, stopping run")
				if _, err := manager.StopRun(); err != nil && !errors.Is(err, scraper.ErrNotRunning) {
					app.Logger().Warn("stop run failed", zap.Error(err))
				}
			}
			ctx = context.WithoutCancel(ctx)
		case evt, ok := <-events:
			if !ok {
				// Dropped for falling behind; history has the outcome.
				events = nil
				break
			}
			if evt.RunID != id {
				continue
			}
			printEvent(out, evt)
			if evt.Type.Terminal() {
				events = nil
			}
		}
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := manager.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for run %s: %w", id, err)
	}
	return finalStatus(waitCtx, app, id)
}

func finalStatus(ctx context.Context, app *server.App, id uuid.UUID) error {
	run, err := app.Manager().GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("load run %s: %w", id, err)
	}
	switch run.Status {
	case scraper.RunStatusCompleted:
		return nil
	case scraper.RunStatusFailed:
		reason := "unknown error"
		if run.LastError != nil {
			reason = *run.LastError
		}
		return fmt.Errorf("run %s failed: %s", id, reason)
	default:
		return fmt.Errorf("run %s ended %s", id, run.Status)
	}
}

func printEvent(out io.Writer, evt progress.Event) {
	line := fmt.Sprintf("%-9s pages=%d found=%d new=%d updated=%d failed=%d errors=%d",
		evt.Type, evt.PagesScraped, evt.ArticlesFound, evt.ArticlesNew,
		evt.ArticlesUpdated, evt.ArticlesFailed, evt.ErrorCount)
	if evt.CurrentArticle != nil {
		line += " article=" + *evt.CurrentArticle
	}
	if evt.Message != nil {
		line += " message=" + *evt.Message
	}
	fmt.Fprintln(out, line)
}
