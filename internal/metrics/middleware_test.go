package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/{job_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/runs/{job_id}/{action}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	conflictBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409"))

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/a/resume", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")) - okBefore; got != 3 {
		t.Errorf("expected 3 GET 200 requests, got %f", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "409")) - conflictBefore; got != 1 {
		t.Errorf("expected 1 POST 409 request, got %f", got)
	}

	// One series per route pattern, not per job id.
	if n := testutil.CollectAndCount(httpRequestDurationSeconds); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestMiddlewareWithoutRouter(t *testing.T) {
	Init()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")) - before; got != 1 {
		t.Errorf("expected one request counted, got %f", got)
	}
}
