// Package walker walks the paginated listing of a category and hands each
// page's product links to a visitor in order.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// PageParam is the query parameter selecting a listing page.
const PageParam = "PAGEN_1"

const (
	paginationSelector = "div.navigation a"
	productSelector    = "div.catalog-item"
	productLink        = "a.name"
)

// Listing is one fetched listing page.
type Listing struct {
	Category catalog.Category
	Page     int
	LastPage int
	Links    []string
}

// Visitor receives listing pages. A returned error stops the walk and is
// passed back to the caller unchanged.
type Visitor func(ctx context.Context, listing Listing) error

// PageWalker walks the listing pages of a category.
type PageWalker struct {
	fetcher  catalog.DocumentFetcher
	base     *url.URL
	logger   *zap.Logger
	progress io.Writer
}

// New builds a PageWalker. Relative product links resolve against baseURL.
func New(f catalog.DocumentFetcher, baseURL string, logger *zap.Logger, progress io.Writer) (*PageWalker, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &PageWalker{fetcher: f, base: base, logger: logger, progress: progress}, nil
}

// Walk visits page 1 of the category, learns the last page number from its
// pagination control and then visits pages 2..last in order. An exhausted page
// fetch ends the category quietly; cancellation and visitor errors propagate.
func (w *PageWalker) Walk(ctx context.Context, category catalog.Category, visit Visitor) error {
	lastPage := 1
	for page := 1; page <= lastPage; page++ {
		pageURL, err := PageURL(category.URL, page)
		if err != nil {
			return fmt.Errorf("category %d: %w", category.ID, err)
		}
		fmt.Fprintf(w.progress, "Processing page %d of category %q\n", page, category.Path)

		doc, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if errors.Is(err, fetcher.ErrAttemptsExhausted) {
				metrics.ObservePageAbort()
				w.logger.Info("listing page load failed",
					zap.Int("page", page),
					zap.String("category", category.Path),
					zap.String("url", pageURL),
				)
				return nil
			}
			return err
		}

		if page == 1 {
			lastPage = LastPage(doc)
		}

		listing := Listing{
			Category: category,
			Page:     page,
			LastPage: lastPage,
			Links:    ProductLinks(doc, w.base),
		}
		if err := visit(ctx, listing); err != nil {
			return err
		}
	}
	return nil
}

// PageURL sets the page query parameter on a category URL.
func PageURL(categoryURL string, page int) (string, error) {
	u, err := url.Parse(categoryURL)
	if err != nil {
		return "", fmt.Errorf("parse category url: %w", err)
	}
	q := u.Query()
	q.Set(PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LastPage reads the page number from the final link of the pagination
// control. Anything unexpected degrades to a single page.
func LastPage(doc *goquery.Document) int {
	last := doc.Find(paginationSelector).Last()
	href, ok := last.Attr("href")
	if !ok {
		return 1
	}
	parts := strings.Split(href, "=")
	n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ProductLinks returns absolute product URLs in document order.
func ProductLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find(productSelector).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(productLink).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links
}
