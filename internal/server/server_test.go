package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bestmoney-nz/bmcompare/internal/analytics"
	"github.com/bestmoney-nz/bmcompare/internal/infra/cache"
	"github.com/bestmoney-nz/bmcompare/internal/infra/metrics"
)

const loansPage = `<!DOCTYPE html>
<html><head><title>Personal Loans</title></head><body>
<form id="comparison-filters">
  <select name="credit">
    <option value="">Any</option>
    <option value="poor">Poor</option>
    <option value="good">Good</option>
  </select>
</form>
<span id="results-count">3</span>
<article class="lender-card" data-lender-id="kiwi" data-credit-score="fair"></article>
<article class="lender-card" data-lender-id="tui" data-credit-score="good"></article>
<article class="lender-card" data-lender-id="kea" data-credit-score="excellent"></article>
</body></html>`

type harness struct {
	root    string
	srv     *Server
	h       http.Handler
	sink    *analytics.MemorySink
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, eventsPerMinute int) harness {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "personal-loans", "index.html"), loansPage)
	writeFile(t, filepath.Join(root, "assets", "site.css"), "body{}")

	store := cache.New(root, false)
	sink := &analytics.MemorySink{}
	m := metrics.New()
	srv := New(Options{
		Root:            root,
		Cache:           &store,
		Sink:            sink,
		Metrics:         m,
		Logger:          zaptest.NewLogger(t),
		EventsPerMinute: eventsPerMinute,
		Now:             func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("NZDT", 13*3600)) },
		NewID:           func() string { return "evt-1" },
	})
	t.Cleanup(srv.Close)
	return harness{root: root, srv: srv, h: srv.Handler(), sink: sink, metrics: m}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func (h harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func hiddenIDs(t *testing.T, body string) []string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	var ids []string
	doc.Find(".lender-card[hidden]").Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, s.AttrOr("data-lender-id", ""))
	})
	return ids
}

func TestPage_NoFilterQueryServesSourceAsIs(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(http.MethodGet, "/personal-loans/?utm_source=mail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bypass", rec.Header().Get("X-Bmcompare-Cache"))
	assert.Equal(t, loansPage, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PageRenders.WithLabelValues("bypass")))
}

func TestPage_FilterQueryRendersAndCaches(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(http.MethodGet, "/personal-loans/?credit=good&utm_source=mail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Bmcompare-Cache"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, []string{"kea"}, hiddenIDs(t, rec.Body.String()))
	assert.Contains(t, rec.Body.String(), `<span id="results-count">2</span>`)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FilterEvaluations.WithLabelValues("credit")))

	entries, err := os.ReadDir(filepath.Join(h.root, "cache", "pages"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// 参数顺序与无关参数不影响缓存命中。
	again := h.do(http.MethodGet, "/personal-loans/?utm_source=x&credit=good", "")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "hit", again.Header().Get("X-Bmcompare-Cache"))
	assert.Equal(t, rec.Body.String(), again.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PageRenders.WithLabelValues("hit")))
}

func TestPage_ReadOnlyCacheStillRenders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), loansPage)
	store := cache.New(root, true)
	srv := New(Options{Root: root, Cache: &store, Logger: zaptest.NewLogger(t)})
	t.Cleanup(srv.Close)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?credit=poor", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"kiwi", "tui", "kea"}, hiddenIDs(t, rec.Body.String()))

	_, err := os.Stat(filepath.Join(root, "cache"))
	assert.True(t, os.IsNotExist(err))
}

func TestPage_StaticAndHiddenPaths(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(http.MethodGet, "/assets/site.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	h.do(http.MethodGet, "/personal-loans/?credit=good", "")
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/cache/", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/.git/config", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/missing.html", "").Code)

	redirect := h.do(http.MethodGet, "/personal-loans", "")
	assert.Equal(t, http.StatusMovedPermanently, redirect.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodPost, "/personal-loans/", "").Code)
}

func TestEvents_AcceptsKnownEvent(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(http.MethodPost, "/events", `{"name":"cta_click","attributes":{"provider_id":"tui","page":"/personal-loans/"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"id":"evt-1"}`, rec.Body.String())

	evs := h.sink.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "cta_click", evs[0].Name)
	assert.Equal(t, "tui", evs[0].Attributes["provider_id"])
	assert.Equal(t, time.UTC, evs[0].At.Location())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsReported.WithLabelValues("cta_click")))
}

func TestEvents_DevHostMirrorsToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := &analytics.MemorySink{}
	srv := New(Options{
		Root:     t.TempDir(),
		Sink:     sink,
		Logger:   zap.New(core),
		DevHosts: []string{"preview.local"},
	})
	t.Cleanup(srv.Close)
	h := srv.Handler()

	body := `{"name":"filter_used","attributes":{"filter_name":"credit","filter_value":"good"}}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Host = "preview.local:8080"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	mirrored := logs.FilterMessage("Analytics Event").All()
	require.Len(t, mirrored, 1)
	assert.Equal(t, "filter_used", mirrored[0].ContextMap()["event"])
	require.Len(t, sink.Events(), 1)

	// 非开发主机：只转发，不写本地日志。
	req = httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Host = "www.bestmoney.co.nz"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, logs.FilterMessage("Analytics Event").All(), 1)
	assert.Len(t, sink.Events(), 2)
}

func TestEvents_RejectsBadInput(t *testing.T) {
	h := newHarness(t, 0)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/events", `{"name":"signup"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/events", `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodGet, "/events", "").Code)

	assert.Empty(t, h.sink.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsRejected.WithLabelValues("unknown_event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsRejected.WithLabelValues("invalid_body")))
}

func TestEvents_RateLimited(t *testing.T) {
	h := newHarness(t, 2)
	body := `{"name":"page_view","attributes":{"page":"/"}}`

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/events", body).Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/events", body).Code)

	rec := h.do(http.MethodPost, "/events", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Len(t, h.sink.Events(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsRejected.WithLabelValues("rate_limited")))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	h.do(http.MethodGet, "/personal-loans/?credit=good", "")
	rec = h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bmcompare_page_renders_total{cache="miss"} 1`)
}
