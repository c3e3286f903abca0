package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/record"
	"github.com/JakeFAU/catalog-crawler/internal/store"
	"github.com/JakeFAU/catalog-crawler/internal/walker"
)

// Walker walks the listing pages of a category.
type Walker interface {
	Walk(ctx context.Context, category catalog.Category, visit walker.Visitor) error
}

// Extractor turns a product page into records.
type Extractor interface {
	Extract(doc *goquery.Document, link, category string) []record.Product
}

// Store persists records, skipping known identities.
type Store interface {
	Append(ctx context.Context, p record.Product) (store.Outcome, error)
}

// Options wires an Engine.
type Options struct {
	Categories []catalog.Category
	Walker     Walker
	Fetcher    catalog.DocumentFetcher
	Extractor  Extractor
	Store      Store
	Policy     RestartPolicy
	Logger     *zap.Logger
	Progress   io.Writer
}

// Engine drives the crawl: categories in order, their listing pages, then
// every product on each page.
type Engine struct {
	categories []catalog.Category
	walker     Walker
	fetcher    catalog.DocumentFetcher
	extractor  Extractor
	store      Store
	policy     RestartPolicy
	logger     *zap.Logger
	progress   io.Writer
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Walker == nil:
		return nil, fmt.Errorf("walker is required")
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case opts.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("store is required")
	case opts.Policy.MaxRestarts <= 0:
		return nil, fmt.Errorf("restart count must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Engine{
		categories: opts.Categories,
		walker:     opts.Walker,
		fetcher:    opts.Fetcher,
		extractor:  opts.Extractor,
		store:      opts.Store,
		policy:     opts.Policy,
		logger:     logger,
		progress:   progress,
		sleep:      fetcher.Sleep,
		now:        time.Now,
	}, nil
}

// Run crawls every category until a pass completes without a fault. Faulted
// passes start over from the first category after the policy interval;
// records stored by earlier passes are skipped by the store. Cancellation of
// ctx ends the run at once with ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	logger := e.logger.With(zap.String("run_id", uuid.NewString()))
	restarts := 0
	for attempt := 1; ; attempt++ {
		err := e.pass(ctx, logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil {
			metrics.ObserveSuccess(float64(e.now().Unix()))
			logger.Info("crawl completed", zap.Int("attempt", attempt), zap.Int("restarts", restarts))
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		restarts++
		metrics.ObserveRestart()
		if !e.policy.ShouldRestart(err, restarts) {
			logger.Error("crawl aborted", zap.Int("restarts", restarts), zap.Error(err))
			return fmt.Errorf("%w after %d restarts: %w", ErrRestartBudgetExhausted, restarts, err)
		}

		wait := e.policy.Backoff()
		logger.Warn("crawl failed, restarting",
			zap.Int("restart", restarts),
			zap.Int("max_restarts", e.policy.MaxRestarts),
			zap.Duration("sleep", wait),
			zap.Error(err),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (e *Engine) pass(ctx context.Context, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("traversal panic: %v", r)
		}
	}()
	for _, category := range e.categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		visit := func(ctx context.Context, listing walker.Listing) error {
			return e.visitListing(ctx, logger, listing)
		}
		if err := e.walker.Walk(ctx, category, visit); err != nil {
			return fmt.Errorf("category %d: %w", category.ID, err)
		}
	}
	return nil
}

func (e *Engine) visitListing(ctx context.Context, logger *zap.Logger, listing walker.Listing) error {
	for i, link := range listing.Links {
		fmt.Fprintf(e.progress, "Processing product %d of %d on page %d: %s\n", i+1, len(listing.Links), listing.Page, link)

		doc, err := e.fetcher.Fetch(ctx, link)
		if err != nil {
			if errors.Is(err, fetcher.ErrAttemptsExhausted) {
				metrics.ObserveProductFailure()
				logger.Info("product page load failed",
					zap.String("url", link),
					zap.String("category", listing.Category.Path),
					zap.Int("page", listing.Page),
				)
				continue
			}
			return err
		}

		for _, p := range e.extractor.Extract(doc, link, listing.Category.Path) {
			outcome, err := e.store.Append(ctx, p)
			if err != nil {
				return fmt.Errorf("store %s: %w", link, err)
			}
			metrics.ObserveRecord(outcome.String())
			logger.Debug("record processed", zap.Stringer("record", p), zap.Stringer("outcome", outcome))
		}
	}
	return nil
}
