package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/webrag/internal/bootstrap"
	"github.com/kirillkom/webrag/internal/core/usecase"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl the configured URLs, index them and run the test queries",
		RunE:  runCrawl,
	}
	cmd.Flags().StringSlice("url", nil, "URL to crawl (repeatable, overrides URLS_TO_SCRAPE)")
	cmd.Flags().Bool("skip-test-queries", false, "Do not run TEST_QUERIES after indexing")
	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if urls, _ := cmd.Flags().GetStringSlice("url"); len(urls) > 0 {
		cfg.URLsToScrape = urls
	}
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewCrawlApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           app.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics_listening", "addr", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics_server_failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("run_started", "urls", len(cfg.URLsToScrape), "concurrency", cfg.Concurrency, "embedding_provider", cfg.EmbeddingProvider, "vector_backend", cfg.VectorBackend)
	summary, err := app.Crawl.Run(ctx, cfg.URLsToScrape)
	if err != nil {
		return fmt.Errorf("crawl run: %w", err)
	}
	for _, failed := range summary.FailedURLs {
		slog.Warn("url_failed", "url", failed.URL, "error_kind", failed.ErrorKind, "error", failed.Error)
	}

	if skip, _ := cmd.Flags().GetBool("skip-test-queries"); !skip {
		runTestQueries(ctx, app.Search, cfg.TestQueries, cfg.TestQueryK)
	}
	return nil
}

func runTestQueries(ctx context.Context, searcher *usecase.SearchUseCase, queries []string, k int) {
	for _, query := range queries {
		results, err := searcher.Search(ctx, query, k)
		if err != nil {
			slog.Warn("test_query_failed", "query", query, "error", err)
			continue
		}
		for i, r := range results {
			slog.Info("test_query_result",
				"query", query,
				"rank", i+1,
				"score", r.Score,
				"source", r.SourceURL,
				"heading_path", r.HeadingPath,
				"preview", preview(r.Text, 120),
			)
		}
	}
}
