package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
	"github.com/tulashvilimindia/batumi.work/internal/storage/memory"
)

type fakeRuns struct {
	mu       sync.Mutex
	runs     []runner.Request
	batches  []runner.BatchRequest
	reparses []runner.ReparseRequest
	err      error
}

func (f *fakeRuns) Submit(_ context.Context, req runner.Request) (crawler.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return crawler.CrawlJob{}, f.err
	}
	f.runs = append(f.runs, req)
	return crawler.CrawlJob{ID: fmt.Sprintf("job-%d", len(f.runs)), Status: crawler.JobStatusPending}, nil
}

func (f *fakeRuns) SubmitBatch(_ context.Context, req runner.BatchRequest) (crawler.CrawlBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return crawler.CrawlBatch{}, f.err
	}
	f.batches = append(f.batches, req)
	ids := make([]string, len(req.Partitions))
	for i := range ids {
		ids[i] = fmt.Sprintf("member-%d", i+1)
	}
	return crawler.CrawlBatch{ID: "batch-1", JobIDs: ids}, nil
}

func (f *fakeRuns) SubmitReparse(_ context.Context, req runner.ReparseRequest) (crawler.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return crawler.CrawlJob{}, f.err
	}
	f.reparses = append(f.reparses, req)
	return crawler.CrawlJob{ID: "reparse-1"}, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type testEnv struct {
	server   *Server
	runs     *fakeRuns
	controls *memory.ControlStore
	listings *memory.ListingStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		runs:     &fakeRuns{},
		controls: memory.NewControlStore(),
		listings: memory.NewListingStore(memory.DefaultLookups([]string{"it", "other"}, nil)),
	}
	env.server = NewServer(env.runs, env.controls, env.listings,
		&fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}, cfg, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedJob(t *testing.T, id string, status crawler.JobStatus, created time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.controls.CreateJob(ctx, crawler.CrawlJob{
		ID: id, Source: "jobsge", Kind: crawler.JobKindManual, CreatedAt: created,
	}))
	if status == crawler.JobStatusPending {
		return
	}
	require.NoError(t, e.controls.StartJob(ctx, id, created))
	if status.IsTerminal() {
		require.NoError(t, e.controls.FinishJob(ctx, id, status, "", created))
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSubmitRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/v1/runs",
		`{"source":"jobsge","partitions":[{"region":" Adjara ","category":"IT"}],"reason":"backfill"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "job-1", decodeBody(t, rec)["job_id"])
	require.Len(t, env.runs.runs, 1)
	got := env.runs.runs[0]
	require.Equal(t, "jobsge", got.Source)
	require.Equal(t, crawler.JobKindManual, got.Kind)
	require.Equal(t, "api", got.TriggeredBy)
	require.Equal(t, "backfill", got.Reason)
	require.Equal(t, []crawler.Partition{{Region: "adjara", Category: "it"}}, got.Partitions)
}

func TestSubmitRunWithModeCreatesBatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/v1/runs",
		`{"source":"jobsge","mode":"parallel","partitions":[{"region":"adjara"},{"region":"tbilisi"}]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "batch-1", body["batch_id"])
	require.Len(t, body["job_ids"], 2)
	require.Empty(t, env.runs.runs)
	require.Equal(t, crawler.BatchParallel, env.runs.batches[0].Mode)
}

func TestSubmitRunValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	cases := map[string]string{
		"invalid json":   `{"source":`,
		"missing source": `{"partitions":[]}`,
		"bad mode":       `{"source":"jobsge","mode":"sideways"}`,
		"unknown field":  `{"source":"jobsge","urls":["x"]}`,
	}
	for name, body := range cases {
		rec := env.do(t, http.MethodPost, "/v1/runs", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	require.Empty(t, env.runs.runs)
}

func TestSubmitRunErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.runs.err = fmt.Errorf("%w: unknown source", runner.ErrInvalidRequest)
	rec := env.do(t, http.MethodPost, "/v1/runs", `{"source":"linkedin"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown source")

	env.runs.err = errors.New("db down")
	rec = env.do(t, http.MethodPost, "/v1/runs", `{"source":"jobsge"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")
}

func TestSubmitReparse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/v1/reparse", `{"source":"hrge","external_id":" 123 ","triggered_by":"ops"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "reparse-1", decodeBody(t, rec)["job_id"])
	require.Equal(t, runner.ReparseRequest{Source: "hrge", ExternalID: "123", TriggeredBy: "ops"}, env.runs.reparses[0])

	rec = env.do(t, http.MethodPost, "/v1/reparse", `{"source":"hrge"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "externalid")
}

func TestGetRunAndItems(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	env.seedJob(t, "run-1", crawler.JobStatusCompleted, base)
	_, err := env.controls.CreateItem(context.Background(), crawler.CrawlItem{JobID: "run-1", ExternalID: "42", StartedAt: base})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = env.do(t, http.MethodGet, "/v1/runs/run-1/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"external_id":"42"`)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/runs/missing", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/runs/missing/items", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/runs/run-1/items?limit=0", "").Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	env.seedJob(t, "old", crawler.JobStatusCompleted, base)
	env.seedJob(t, "mid", crawler.JobStatusFailed, base.Add(time.Hour))
	env.seedJob(t, "new", crawler.JobStatusRunning, base.Add(2*time.Hour))

	rec := env.do(t, http.MethodGet, "/v1/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Jobs []crawler.CrawlJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Jobs, 2)
	require.Equal(t, "new", page.Jobs[0].ID)
	require.Equal(t, "mid", page.Jobs[1].ID)

	rec = env.do(t, http.MethodGet, "/v1/runs?status=FAILED", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Jobs, 1)
	require.Equal(t, "mid", page.Jobs[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/runs?source=hrge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"jobs":[]}`, rec.Body.String())

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/runs?status=bogus", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/runs?offset=-1", "").Code)
}

func TestControlRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.seedJob(t, "run-1", crawler.JobStatusRunning, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/v1/runs/run-1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job, err := env.controls.GetJob(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, job.ShouldPause)

	// Resume is only valid once the run has acknowledged the pause.
	rec = env.do(t, http.MethodPost, "/v1/runs/run-1/resume", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "running", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/v1/runs/run-1/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "stopping", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/v1/runs/run-1/pause", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/runs/run-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cancelled", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/v1/runs/run-1/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/runs/missing/stop", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/runs/run-1/explode", "").Code)
}

func TestGetBatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	require.NoError(t, env.controls.CreateBatch(context.Background(), crawler.CrawlBatch{
		ID: "b1", Source: "jobsge", Mode: crawler.BatchSequential, Status: crawler.JobStatusRunning,
		JobIDs: []string{"a", "b"}, Total: 2,
	}))

	rec := env.do(t, http.MethodGet, "/v1/batches/b1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"job_ids":["a","b"]`)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/batches/nope", "").Code)
}

func TestUnqueuedCount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	ctx := context.Background()
	for _, l := range []crawler.Listing{
		{JobRecord: crawler.JobRecord{Source: "jobsge", ExternalID: "1"}, Status: crawler.ListingActive},
		{JobRecord: crawler.JobRecord{Source: "jobsge", ExternalID: "2"}, Status: crawler.ListingActive},
		{JobRecord: crawler.JobRecord{Source: "hrge", ExternalID: "1"}, Status: crawler.ListingActive},
	} {
		_, err := env.listings.InsertListing(ctx, l)
		require.NoError(t, err)
	}
	env.listings.MarkQueued(1)

	rec := env.do(t, http.MethodGet, "/v1/listings/unqueued-count?source=jobsge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"source":"jobsge","count":1}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/listings/unqueued-count", "")
	require.JSONEq(t, `{"source":"","count":2}`, rec.Body.String())
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{APIKeys: []string{"secret"}})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/runs", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestPanicIsLoggedAs500(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	handler := middleware.RequestID(loggingMiddleware(zap.New(core))(
		middleware.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})),
	))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.EqualValues(t, http.StatusInternalServerError, fields["status"])
	require.NotEmpty(t, fields["request_id"])
}
