// Package cmd defines the scraperd command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ai-news-scraper/internal/config"
	"github.com/JakeFAU/ai-news-scraper/internal/server"
)

// buildApp is the application factory. Tests replace it to inject options.
var buildApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
	return server.Build(ctx, cfg)
}

type rootOptions struct {
	configPath string
}

// loadConfig reads the file named by --config plus the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "scraperd",
		Short: "Scrape-run orchestrator for AI news sources.",
		Long: `scraperd walks AI news sources (AIBase, smol.ai) and stores their articles.
Runs are started over HTTP, on a cron schedule, or in the foreground with
the scrape command. Only one run is active at a time.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newScrapeCmd(opts))

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
