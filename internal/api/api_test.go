package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

const testVideo = "dQw4w9WgXcQ"

var testQuestionID = uuid.MustParse("7f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f")

type fakeReader struct {
	lastFilter store.QAFilter
	lastLimit  int
	lastOffset int
	lastQuery  string
	categories int
	err        error
}

func (f *fakeReader) ListVideos(_ context.Context, q string, limit, offset int) ([]store.Video, error) {
	f.lastQuery, f.lastLimit, f.lastOffset = q, limit, offset
	return []store.Video{{YouTubeID: testVideo, Title: "Ask the Pastor", Status: store.VideoProcessed}}, f.err
}

func (f *fakeReader) VideoSummaries(_ context.Context, limit, offset int) ([]store.VideoSummary, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return []store.VideoSummary{{YouTubeID: testVideo, QACount: 2, Categories: []string{"Theology"}}}, f.err
}

func (f *fakeReader) GetVideo(_ context.Context, id string) (*store.Video, error) {
	if id != testVideo {
		return nil, store.ErrNotFound
	}
	return &store.Video{YouTubeID: id, Description: "desc", Status: store.VideoProcessed}, nil
}

func (f *fakeReader) VideoQuestions(_ context.Context, id string, filter store.QAFilter) ([]store.QAItem, error) {
	f.lastFilter = filter
	if id != testVideo {
		return nil, store.ErrNotFound
	}
	return []store.QAItem{{ID: testQuestionID, Question: "What is grace?", Tags: []string{}}}, nil
}

func (f *fakeReader) SearchQuestions(_ context.Context, filter store.QAFilter) (*store.SearchResponse, error) {
	f.lastFilter = filter
	return &store.SearchResponse{Query: filter.Query, Total: 1, Results: []store.SearchResult{{ID: testQuestionID, Rank: 0.5}}}, f.err
}

func (f *fakeReader) GetQuestion(_ context.Context, id uuid.UUID) (*store.QAItem, error) {
	if id != testQuestionID {
		return nil, store.ErrNotFound
	}
	return &store.QAItem{ID: id, Answer: "full answer", VideoYouTubeID: testVideo}, nil
}

func (f *fakeReader) Categories(context.Context) ([]string, error) {
	f.categories++
	return []string{"Apologetics", "Theology"}, f.err
}

func (f *fakeReader) Subcategories(_ context.Context, category string) ([]string, error) {
	if category == "Theology" {
		return []string{"Salvation"}, nil
	}
	return []string{"Evidence", "Salvation"}, nil
}

func (f *fakeReader) Tags(_ context.Context, limit int) ([]string, error) {
	f.lastLimit = limit
	return []string{"grace"}, nil
}

func (f *fakeReader) Ping(context.Context) error { return f.err }

type fakeIngester struct {
	batchMax int
	opts     ingest.RunOptions
	err      error
}

func (f *fakeIngester) CheckPlaylist(context.Context) (*ingest.CheckResult, error) {
	return &ingest.CheckResult{NewVideosFound: 1, VideoIDs: []string{testVideo}}, f.err
}

func (f *fakeIngester) RunOne(_ context.Context, opts ingest.RunOptions) (*ingest.RunResult, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.RunResult{Processed: true, YouTubeID: testVideo, Message: "Success"}, nil
}

func (f *fakeIngester) RunBatch(_ context.Context, maxJobs int, opts ingest.RunOptions) []ingest.RunResult {
	f.batchMax, f.opts = maxJobs, opts
	return []ingest.RunResult{}
}

func (f *fakeIngester) Reprocess(_ context.Context, id string, _ ingest.RunOptions) (*ingest.RunResult, error) {
	if _, err := youtube.VideoID(id); err != nil {
		return nil, err
	}
	if id != testVideo {
		return nil, fmt.Errorf("%w: %s", ingest.ErrVideoNotFound, id)
	}
	return &ingest.RunResult{Processed: true, YouTubeID: id, Message: "Reprocessed successfully"}, nil
}

func (f *fakeIngester) Enqueue(_ context.Context, input string) (string, bool, error) {
	id, err := youtube.VideoID(input)
	return id, err == nil, err
}

func (f *fakeIngester) QueueStats(context.Context) (store.QueueStats, error) {
	return store.QueueStats{Pending: 2, Total: 2}, nil
}

func newTestRouter(t *testing.T, cfg Config) (http.Handler, *fakeReader, *fakeIngester) {
	t.Helper()
	engine.InitCache("", time.Minute, 100, time.Minute)
	r, ing := &fakeReader{}, &fakeIngester{}
	return NewRouter(cfg, r, ing), r, ing
}

func do(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestListVideos(t *testing.T) {
	h, r, _ := newTestRouter(t, Config{})

	rec := do(h, http.MethodGet, "/v1/videos?q=grace&limit=10&offset=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", r.lastQuery)
	assert.Equal(t, 10, r.lastLimit)
	assert.Equal(t, 5, r.lastOffset)

	var videos []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &videos))
	require.Len(t, videos, 1)
	assert.Equal(t, testVideo, videos[0]["youtube_id"])
	assert.NotContains(t, videos[0], "description")

	rec = do(h, http.MethodGet, "/v1/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, r.lastLimit)
}

func TestValidation(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{})
	for _, target := range []string{
		"/v1/videos?limit=0",
		"/v1/videos?limit=101",
		"/v1/videos?limit=abc",
		"/v1/videos?offset=-1",
		"/v1/questions/search?q=a",
		"/v1/questions/search",
		"/v1/questions/search?q=grace&limit=500",
		"/v1/tags?limit=501",
	} {
		rec := do(h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, target)
		assert.NotEmpty(t, detail(t, rec), target)
	}
}

func TestVideoSummaryRouteIsNotAVideoID(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{})
	rec := do(h, http.MethodGet, "/v1/videos/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sums []store.VideoSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].QACount)
}

func TestGetVideo(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{})

	rec := do(h, http.MethodGet, "/v1/videos/"+testVideo, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"description":"desc"`)

	rec = do(h, http.MethodGet, "/v1/videos/9bZkp7q19f0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Video not found: 9bZkp7q19f0", detail(t, rec))
}

func TestVideoQuestionsFilters(t *testing.T) {
	h, r, _ := newTestRouter(t, Config{})

	rec := do(h, http.MethodGet, "/v1/videos/"+testVideo+"/questions?category=Theology&subcategory=Salvation&tag=grace&q=faith", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.QAFilter{
		Category: "Theology", Subcategory: "Salvation", Tag: "grace", Query: "faith", Limit: 50,
	}, r.lastFilter)

	rec = do(h, http.MethodGet, "/v1/videos/9bZkp7q19f0/questions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchQuestions(t *testing.T) {
	h, r, _ := newTestRouter(t, Config{})

	rec := do(h, http.MethodGet, "/v1/questions/search?q=grace&tag=baptism", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, r.lastFilter.Limit)
	assert.Equal(t, "baptism", r.lastFilter.Tag)

	var resp store.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "grace", resp.Query)
	assert.Equal(t, 1, resp.Total)
}

func TestGetQuestion(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{})

	rec := do(h, http.MethodGet, "/v1/questions/"+testQuestionID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"answer":"full answer"`)

	rec = do(h, http.MethodGet, "/v1/questions/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/v1/questions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaxonomyEndpointsAreCached(t *testing.T) {
	h, r, _ := newTestRouter(t, Config{})

	for range 2 {
		rec := do(h, http.MethodGet, "/v1/categories", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `["Apologetics","Theology"]`, rec.Body.String())
	}
	assert.Equal(t, 1, r.categories)

	rec := do(h, http.MethodGet, "/v1/subcategories?category=Theology", nil)
	assert.JSONEq(t, `["Salvation"]`, rec.Body.String())

	rec = do(h, http.MethodGet, "/v1/tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, r.lastLimit)
}

func TestStoreErrorIs500(t *testing.T) {
	h, r, _ := newTestRouter(t, Config{})
	r.err = errors.New("db down")

	rec := do(h, http.MethodGet, "/v1/videos", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, detail(t, rec), "db down")

	rec = do(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestAuth(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{AdminAPIKey: "admin", CronSecret: "cron"})

	rec := do(h, http.MethodGet, "/v1/ingest/queue", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", detail(t, rec))

	rec = do(h, http.MethodGet, "/v1/ingest/queue", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/v1/ingest/queue", map[string]string{"X-API-Key": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":2,"processing":0,"done":0,"failed":0,"total":2}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/v1/ingest/check", map[string]string{"Authorization": "Bearer cron"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/v1/ingest/check", map[string]string{"Authorization": "Bearer admin"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestAuthUnconfigured(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{})
	rec := do(h, http.MethodGet, "/v1/ingest/queue", map[string]string{"X-API-Key": ""})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngestRoutes(t *testing.T) {
	h, _, ing := newTestRouter(t, Config{AdminAPIKey: "admin", BatchSize: 3})
	auth := map[string]string{"X-API-Key": "admin"}

	rec := do(h, http.MethodPost, "/v1/ingest/run-one?skip_classification=true", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ing.opts.SkipClassification)

	rec = do(h, http.MethodGet, "/v1/ingest/run-batch", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, ing.batchMax)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(h, http.MethodPost, "/v1/ingest/run-batch?max_jobs=2", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ing.batchMax)

	rec = do(h, http.MethodPost, "/v1/ingest/run-one?skip_classification=maybe", auth)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(h, http.MethodPost, "/v1/ingest/reprocess/"+testVideo, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(h, http.MethodPost, "/v1/ingest/reprocess/9bZkp7q19f0", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/v1/ingest/enqueue/"+testVideo, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enqueued":true`)
	rec = do(h, http.MethodPost, "/v1/ingest/enqueue/bad", auth)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ing.err = errors.New("queue down")
	rec = do(h, http.MethodPost, "/v1/ingest/run-one", auth)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{RateLimitRPS: 1, RateLimitBurst: 2})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/categories", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/categories", nil).Code)
	rec := do(h, http.MethodGet, "/v1/categories", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", nil).Code, "root routes are not limited")
}

func TestIPLimiterForgetsIdleVisitors(t *testing.T) {
	l := &ipLimiter{visitors: map[string]*visitor{}, rps: 1, burst: 1, idle: time.Minute, sweptAt: time.Now()}
	now := time.Now()
	assert.True(t, l.allow("1.2.3.4", now))
	assert.False(t, l.allow("1.2.3.4", now))
	assert.True(t, l.allow("5.6.7.8", now))

	later := now.Add(2 * time.Minute)
	assert.True(t, l.allow("9.9.9.9", later))
	assert.Len(t, l.visitors, 1)
}

func TestMetricsAndRoot(t *testing.T) {
	h, _, _ := newTestRouter(t, Config{Name: "go_podqa", Version: "test"})

	rec := do(h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobs_claimed")

	rec = do(h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}
