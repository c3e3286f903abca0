package fetcher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

type countingGetter struct {
	mu       sync.Mutex
	attempts int
	fails    int
	headers  http.Header
}

func (g *countingGetter) Get(_ context.Context, url string, headers http.Header) (Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	g.headers = headers
	if g.attempts <= g.fails {
		return Response{}, errors.New("transient error")
	}
	return Response{
		URL:         url,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte("<html><head><title>ok</title></head></html>"),
	}, nil
}

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestFetcher(getter Getter, cfg Config) (*RetryingFetcher, *recordedSleeps) {
	f := NewRetryingFetcher(getter, cfg, zap.NewNop())
	rec := &recordedSleeps{}
	f.sleep = rec.sleep
	return f, rec
}

func TestRetryingFetcher_SucceedsOnAttemptK(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{fails: 2}
	f, sleeps := newTestFetcher(getter, Config{MaxAttempts: 3})

	doc, err := f.Fetch(context.Background(), "https://example.com/catalog/")
	require.NoError(t, err)
	require.Equal(t, "ok", doc.Find("title").Text())
	require.Equal(t, 3, getter.attempts)
	require.Len(t, sleeps.delays, 3, "a delay precedes every attempt")
}

func TestRetryingFetcher_ExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{fails: 10}
	f, _ := newTestFetcher(getter, Config{MaxAttempts: 4})

	doc, err := f.Fetch(context.Background(), "https://example.com/catalog/")
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 4, getter.attempts)
}

func TestRetryingFetcher_FirstSuccessStops(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{}
	f, _ := newTestFetcher(getter, Config{MaxAttempts: 5})

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, 1, getter.attempts)
}

func TestRetryingFetcher_CancellationShortCircuits(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{fails: 10}
	f := NewRetryingFetcher(getter, Config{MaxAttempts: 5}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://example.com/")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrAttemptsExhausted)
	require.Zero(t, getter.attempts)
}

func TestRetryingFetcher_CancelDuringDelay(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{}
	f := NewRetryingFetcher(getter, Config{
		MaxAttempts: 3,
		Delay:       DelayRange{Min: time.Hour, Max: time.Hour},
	}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, "https://example.com/")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, getter.attempts)
}

func TestRetryingFetcher_DelayWithinRange(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{fails: 5}
	f, sleeps := newTestFetcher(getter, Config{
		MaxAttempts: 6,
		Delay:       DelayRange{Min: 2 * time.Second, Max: 5 * time.Second},
	})

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, sleeps.delays, 6)
	for _, d := range sleeps.delays {
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestRetryingFetcher_ZeroDelayRange(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{}
	f, sleeps := newTestFetcher(getter, Config{MaxAttempts: 1})

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, []time.Duration{0}, sleeps.delays)
}

func TestRetryingFetcher_PassesHeaders(t *testing.T) {
	t.Parallel()

	getter := &countingGetter{}
	headers := http.Header{"User-Agent": {"catalog-bot"}}
	f, _ := newTestFetcher(getter, Config{MaxAttempts: 1, Headers: headers})

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, "catalog-bot", getter.headers.Get("User-Agent"))
}

func TestParseDocumentDecodesCharset(t *testing.T) {
	t.Parallel()

	body, err := charmap.Windows1251.NewEncoder().String("<html><head><title>Корм для собак</title></head></html>")
	require.NoError(t, err)

	doc, err := ParseDocument(Response{
		ContentType: "text/html; charset=windows-1251",
		Body:        []byte(body),
	})
	require.NoError(t, err)
	require.Equal(t, "Корм для собак", doc.Find("title").Text())
}

func TestSleepHonoursContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestRandomJitterBounds(t *testing.T) {
	t.Parallel()

	require.Zero(t, randomJitter(0))
	for i := 0; i < 50; i++ {
		d := randomJitter(3 * time.Second)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 3*time.Second)
	}
}
