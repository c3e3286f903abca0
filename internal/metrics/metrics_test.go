package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Zootovary.ru/catalog/", "zootovary.ru"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(crawlerRecordsTotal.WithLabelValues("written"))
	ObserveRecord("written")
	require.InDelta(t, before+1, testutil.ToFloat64(crawlerRecordsTotal.WithLabelValues("written")), 0.001)

	restarts := testutil.ToFloat64(crawlerRestartsTotal)
	ObserveRestart()
	require.InDelta(t, restarts+1, testutil.ToFloat64(crawlerRestartsTotal), 0.001)

	fetches := testutil.ToFloat64(crawlerRequestsTotal.WithLabelValues("example.com", OutcomeFailure))
	ObserveFetch("https://example.com/a", OutcomeFailure)
	require.InDelta(t, fetches+1, testutil.ToFloat64(crawlerRequestsTotal.WithLabelValues("example.com", OutcomeFailure)), 0.001)
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	Init()
	h := Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	ObserveRestart()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawler_restarts_total")
}
