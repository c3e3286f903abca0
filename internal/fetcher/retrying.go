package fetcher

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// ErrAttemptsExhausted is returned once every attempt for a URL has failed.
var ErrAttemptsExhausted = errors.New("fetch attempts exhausted")

// DelayRange is the inclusive range a pre-request delay is drawn from.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Config controls RetryingFetcher.
type Config struct {
	MaxAttempts int
	Delay       DelayRange
	Headers     http.Header
}

// RetryingFetcher fetches a URL into a parsed document with bounded attempts.
type RetryingFetcher struct {
	getter Getter
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

// NewRetryingFetcher wraps getter with the retry and delay policy in cfg.
func NewRetryingFetcher(getter Getter, cfg Config, logger *zap.Logger) *RetryingFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Delay.Max < cfg.Delay.Min {
		cfg.Delay.Max = cfg.Delay.Min
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		getter: getter,
		cfg:    cfg,
		logger: logger,
		sleep:  Sleep,
		jitter: randomJitter,
	}
}

// Fetch returns the parsed document for url. Context cancellation is returned
// as is and never consumes an attempt; exhaustion wraps ErrAttemptsExhausted.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		delay := f.nextDelay()
		metrics.ObserveDelay(delay.Seconds())
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}

		doc, err := f.attempt(ctx, url)
		if err == nil {
			metrics.ObserveFetch(url, metrics.OutcomeSuccess)
			return doc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		metrics.ObserveFetch(url, metrics.OutcomeFailure)
		f.logger.Info("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.cfg.MaxAttempts),
			zap.String("url", url),
			zap.Error(err),
		)
	}
	metrics.ObserveFetch(url, metrics.OutcomeExhausted)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrAttemptsExhausted, url, f.cfg.MaxAttempts, lastErr)
}

func (f *RetryingFetcher) attempt(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := f.getter.Get(ctx, url, f.cfg.Headers)
	if err != nil {
		return nil, err
	}
	return ParseDocument(resp)
}

func (f *RetryingFetcher) nextDelay() time.Duration {
	spread := f.cfg.Delay.Max - f.cfg.Delay.Min
	return f.cfg.Delay.Min + f.jitter(spread)
}

// ParseDocument decodes the body to UTF-8 using the declared or sniffed
// charset and parses it into a goquery document.
func ParseDocument(resp Response) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randomJitter returns a uniform duration in [0, limit].
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
