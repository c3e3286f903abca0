// Package cmd defines and implements the CLI commands for the catalog-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
	"github.com/JakeFAU/catalog-crawler/internal/store"
	"github.com/JakeFAU/catalog-crawler/internal/walker"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured categories",
		Long: `Loads the category list, walks every listing page of the selected
categories and appends new product variants to the output store.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := appInstance.Config
	logger := appInstance.Logger

	index, err := loadOrDiscoverCategories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	categories, err := index.Select(cfg.Categories)
	if err != nil {
		return fmt.Errorf("categories: %w", err)
	}

	out, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn("failed to close output store", zap.Error(cerr))
		}
	}()

	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, logger.Named("metrics"))
		defer stopMetrics()
	}

	engine, err := buildEngine(cfg, categories, out, logger, cmd)
	if err != nil {
		return err
	}

	logger.Info("crawl started", zap.Int("categories", len(categories)), zap.Int("known_categories", index.Len()))
	if err := engine.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl interrupted")
			return nil
		}
		return fmt.Errorf("run crawler: %w", err)
	}
	return nil
}

// loadOrDiscoverCategories reads the categories file, building it from the
// site menu first when it does not exist yet.
func loadOrDiscoverCategories(ctx context.Context, cfg config.Config, logger *zap.Logger) (*catalog.Index, error) {
	index, err := catalog.LoadCategories(cfg.CategoriesFile)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return index, err
	}
	logger.Info("categories file missing, discovering", zap.String("path", cfg.CategoriesFile))
	categories, err := discoverCategories(ctx, cfg, logger, cfg.CategoriesFile)
	if err != nil {
		return nil, err
	}
	return catalog.NewIndex(categories)
}

func newDocumentFetcher(cfg config.Config, logger *zap.Logger) *fetcher.RetryingFetcher {
	getter := fetcher.NewCollyGetter(fetcher.CollyConfig{Timeout: cfg.RequestTimeout})
	return fetcher.NewRetryingFetcher(getter, cfg.FetcherConfig(), logger.Named("fetcher"))
}

func buildEngine(cfg config.Config, categories []catalog.Category, out store.Store, logger *zap.Logger, cmd *cobra.Command) (*crawler.Engine, error) {
	docs := newDocumentFetcher(cfg, logger)
	pages, err := walker.New(docs, cfg.BaseURL, logger.Named("walker"), cmd.OutOrStdout())
	if err != nil {
		return nil, fmt.Errorf("init walker: %w", err)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	engine, err := crawler.NewEngine(crawler.Options{
		Categories: categories,
		Walker:     pages,
		Fetcher:    docs,
		Extractor:  extract.New(base, nil),
		Store:      out,
		Policy:     cfg.RestartPolicy(),
		Logger:     logger.Named("crawler"),
		Progress:   cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Output.Driver {
	case config.DriverPostgres:
		s, err := store.OpenPostgres(ctx, cfg.PostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := store.OpenCSV(cfg.OutputDirectory, logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("init csv store: %w", err)
		}
		logger.Info("writing records", zap.String("path", s.Path()))
		return s, nil
	}
}
