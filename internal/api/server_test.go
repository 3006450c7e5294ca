package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/eduspider/internal/crawler"
	"github.com/JakeFAU/eduspider/internal/storage/memory"
)

func seededCatalog(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	jobID, err := store.CreateJob(ctx, "https://example.edu", 2)
	require.NoError(t, err)
	require.NoError(t, store.FinishJob(ctx, jobID, 2, crawler.JobStatusDone))

	first, err := store.SavePage(ctx, crawler.PageInput{URL: "https://example.edu/", Title: "Home", Domain: "example.edu", JobID: jobID})
	require.NoError(t, err)
	second, err := store.SavePage(ctx, crawler.PageInput{URL: "https://example.edu/physics", Title: "Physics", Domain: "example.edu", Depth: 1, JobID: jobID})
	require.NoError(t, err)

	physics, err := store.GetOrCreateTopic(ctx, "physics")
	require.NoError(t, err)
	require.NoError(t, store.LinkPageTopic(ctx, first, physics))
	require.NoError(t, store.LinkPageTopic(ctx, second, physics))
	return store
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewStore(), zap.NewNop())
	rec := serve(t, server.Handler(), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewStore(), zap.NewNop())
	serve(t, server.Handler(), "/healthz")
	rec := serve(t, server.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawler_pages_saved_total")
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ListTopics(t *testing.T) {
	t.Parallel()

	server := NewServer(seededCatalog(t), zap.NewNop())
	rec := serve(t, server.Handler(), "/v1/topics")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Topics []crawler.TopicCount `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []crawler.TopicCount{{Name: "physics", PageCount: 2}}, body.Topics)
}

func TestServer_ListTopicsEmpty(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewStore(), zap.NewNop())
	rec := serve(t, server.Handler(), "/v1/topics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"topics":[]}`, rec.Body.String())
}

func TestServer_ListTopicPages(t *testing.T) {
	t.Parallel()

	server := NewServer(seededCatalog(t), zap.NewNop())
	rec := serve(t, server.Handler(), "/v1/topics/physics/pages?limit=1")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Topic string         `json:"topic"`
		Pages []crawler.Page `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "physics", body.Topic)
	require.Len(t, body.Pages, 1)
}

func TestServer_ListTopicPagesUnknownTopic(t *testing.T) {
	t.Parallel()

	server := NewServer(seededCatalog(t), zap.NewNop())
	rec := serve(t, server.Handler(), "/v1/topics/chemistry/pages")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "topic not found")
}

func TestServer_ListJobs(t *testing.T) {
	t.Parallel()

	server := NewServer(seededCatalog(t), zap.NewNop())
	rec := serve(t, server.Handler(), "/v1/jobs?limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []crawler.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	require.Equal(t, crawler.JobStatusDone, body.Jobs[0].Status)
	require.Equal(t, 2, body.Jobs[0].PagesFound)
}

func TestServer_InvalidLimit(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewStore(), zap.NewNop())
	for _, target := range []string{"/v1/jobs?limit=abc", "/v1/topics?limit=0", "/v1/topics/x/pages?limit=100000"} {
		rec := serve(t, server.Handler(), target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

type failingCatalog struct{}

func (failingCatalog) ListTopics(context.Context, int) ([]crawler.TopicCount, error) {
	return nil, errors.New("boom")
}

func (failingCatalog) ListPagesForTopic(context.Context, string, int) ([]crawler.Page, error) {
	return nil, errors.New("boom")
}

func (failingCatalog) ListJobs(context.Context, int) ([]crawler.Job, error) {
	return nil, errors.New("boom")
}

func TestServer_CatalogErrors(t *testing.T) {
	t.Parallel()

	server := NewServer(failingCatalog{}, zap.NewNop())
	for _, target := range []string{"/v1/jobs", "/v1/topics", "/v1/topics/x/pages"} {
		rec := serve(t, server.Handler(), target)
		require.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewStore(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
