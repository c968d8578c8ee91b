package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	brokermemory "github.com/shortloop/shortloop/internal/broker/memory"
	cachememory "github.com/shortloop/shortloop/internal/cache/memory"
	"github.com/shortloop/shortloop/internal/id/uuid"
	"github.com/shortloop/shortloop/internal/producer"
	pubmemory "github.com/shortloop/shortloop/internal/publisher/memory"
	"github.com/shortloop/shortloop/internal/shortener"
	"github.com/shortloop/shortloop/internal/stats"
	storememory "github.com/shortloop/shortloop/internal/storage/memory"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type testEnv struct {
	server *Server
	urls   *storememory.URLStore
	jobs   *storememory.JobStore
	cache  *cachememory.Cache
	broker *brokermemory.Broker
	pub    *pubmemory.Publisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		urls:   storememory.NewURLStore(),
		jobs:   storememory.NewJobStore(),
		cache:  cachememory.New(),
		broker: brokermemory.New(64),
		pub:    pubmemory.New(),
	}
	prod := producer.New(env.urls, env.jobs, env.broker, env.cache, env.pub,
		uuid.NewGenerator(), systemClock{}, nil, zap.NewNop())
	env.server = NewServer(Options{
		Producer:  prod,
		URLs:      env.urls,
		Cache:     env.cache,
		Broker:    env.broker,
		Stats:     stats.New(env.urls, env.jobs),
		Publisher: env.pub,
		BaseURL:   "http://sl.test",
		Logger:    zap.NewNop(),
	})
	return env
}

func (env *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) shortenOK(t *testing.T, url string) string {
	t.Helper()
	rec := env.do(http.MethodPost, "/shorten", []byte(`{"url":"`+url+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp shortenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ShortCode
}

func TestServer_Shorten(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/shorten", []byte(`{"url":"https://example.com/page"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp shortenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ShortCode, shortener.CodeLength)
	require.Equal(t, "http://sl.test/"+resp.ShortCode, resp.ShortURL)
	require.Equal(t, "https://example.com/page", resp.OriginalURL)

	// One descriptor per job type hit the queue.
	depth, err := env.broker.Length(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, len(shortener.AllJobTypes()), depth)
}

func TestServer_Shorten_BadRequests(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for name, body := range map[string]string{
		"invalid json":          `{`,
		"missing url":           `{}`,
		"bad scheme":            `{"url":"ftp://example.com"}`,
		"custom code too long":  `{"url":"https://example.com","custom_code":"seventeen-chars-x"}`,
		"custom code bad chars": `{"url":"https://example.com","custom_code":"no/slashes"}`,
	} {
		rec := env.do(http.MethodPost, "/shorten", []byte(body))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestServer_Shorten_CustomCodeConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/shorten", []byte(`{"url":"https://a.example","custom_code":"mylink"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/shorten", []byte(`{"url":"https://b.example","custom_code":"mylink"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Redirect(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	code := env.shortenOK(t, "https://example.com/target")

	rec := env.do(http.MethodGet, "/"+code, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://example.com/target", rec.Header().Get("Location"))

	// The click landed on the record.
	got, err := env.urls.Get(context.Background(), code)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.ClickCount)

	// And produced an analytics event alongside the url_created one.
	events := env.pub.ByTopic(producer.TopicAnalytics)
	require.Len(t, events, 2)
}

func TestServer_Redirect_CacheMissFillsCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.urls.Create(ctx, shortener.URLRecord{
		ShortCode:   "direct",
		OriginalURL: "https://example.com/direct",
	}))

	rec := env.do(http.MethodGet, "/direct", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	cached, ok, err := env.cache.Get(ctx, "direct")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com/direct", cached)
}

func TestServer_Redirect_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/zzzzzz", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	code := env.shortenOK(t, "https://example.com/stats")

	// Complete one job so the stats view carries a result.
	jobs, err := env.jobs.ListByShortCode(context.Background(), code)
	require.NoError(t, err)
	require.NotEmpty(t, jobs)
	_, err = env.jobs.Claim(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Complete(context.Background(), jobs[0].ID, json.RawMessage(`{"ok":true}`)))

	rec := env.do(http.MethodGet, "/stats/"+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view stats.URLStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, code, view.ShortCode)
	require.Len(t, view.Jobs, len(shortener.AllJobTypes()))

	completed := 0
	for _, j := range view.Jobs {
		if j.Status == string(shortener.JobStatusCompleted) {
			completed++
			require.JSONEq(t, `{"ok":true}`, string(j.Result))
		}
	}
	require.Equal(t, 1, completed)
}

func TestServer_Stats_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/stats/zzzzzz", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_QueueDepth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.shortenOK(t, "https://example.com/depth")

	rec := env.do(http.MethodGet, "/v1/queue/depth", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, len(shortener.AllJobTypes()), resp["depth"])
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.server.pingers = []Pinger{okPinger{}}
	rec := env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.server.pingers = []Pinger{okPinger{}, failingPinger{}}
	rec = env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
