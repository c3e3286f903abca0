// Package fetcher retrieves catalog pages and parses them into documents,
// retrying transient failures with a randomized pre-request delay.
package fetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// DefaultTimeout bounds a single GET.
const DefaultTimeout = 10 * time.Second

// Response is the raw result of a single GET.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Getter performs exactly one GET.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (Response, error)
}

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyGetter implements Getter using the Colly collector.
type CollyGetter struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyGetter builds a CollyGetter.
func NewCollyGetter(cfg CollyConfig) *CollyGetter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// Retries and whole-run restarts revisit the same URLs.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &CollyGetter{cfg: cfg, baseCollector: c}
}

// Get executes a single HTTP GET. Status codes >= 400 are reported as errors.
func (g *CollyGetter) Get(ctx context.Context, url string, headers http.Header) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	collector := g.baseCollector.Clone()
	g.configureCollectorHooks(collector, headers, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return Response{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return Response{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if result.StatusCode >= http.StatusBadRequest {
			return Response{}, fmt.Errorf("unexpected status %d for %s", result.StatusCode, url)
		}
		return result, nil
	}
}

func (g *CollyGetter) configureCollectorHooks(
	hooks collectorHooks,
	headers http.Header,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.ContentType = utf8ContentType(r.Headers.Get("Content-Type"))
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

// utf8ContentType relabels a declared non-UTF-8 charset as UTF-8. Colly has
// already converted such bodies by the time OnResponse runs.
func utf8ContentType(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return contentType
	}
	if cs := strings.ToLower(params["charset"]); cs == "utf-8" || cs == "utf8" {
		return contentType
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
