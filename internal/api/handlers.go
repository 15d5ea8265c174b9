package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

const (
	defaultJobLimit   = 50
	maxJobLimit       = 500
	defaultItemsLimit = 100
	maxItemsLimit     = 1000
	storeTimeout      = 3 * time.Second
)

type partitionRequest struct {
	Region   string `json:"region" validate:"omitempty,max=64"`
	Category string `json:"category" validate:"omitempty,max=64"`
	Keyword  string `json:"keyword" validate:"omitempty,max=200"`
}

type runRequest struct {
	Source      string             `json:"source" validate:"required,max=64"`
	Partitions  []partitionRequest `json:"partitions" validate:"omitempty,max=200,dive"`
	Mode        string             `json:"mode" validate:"omitempty,oneof=sequential parallel"`
	TriggeredBy string             `json:"triggered_by" validate:"omitempty,max=100"`
	Reason      string             `json:"reason" validate:"omitempty,max=500"`
}

type reparseRequest struct {
	Source      string `json:"source" validate:"required,max=64"`
	ExternalID  string `json:"external_id" validate:"required,max=128"`
	TriggeredBy string `json:"triggered_by" validate:"omitempty,max=100"`
}

func (req runRequest) partitions() []crawler.Partition {
	if len(req.Partitions) == 0 {
		return nil
	}
	out := make([]crawler.Partition, 0, len(req.Partitions))
	for _, p := range req.Partitions {
		out = append(out, crawler.Partition{
			Region:   strings.ToLower(strings.TrimSpace(p.Region)),
			Category: strings.ToLower(strings.TrimSpace(p.Category)),
			Keyword:  strings.TrimSpace(p.Keyword),
		})
	}
	return out
}

// submitRun handles POST /v1/runs. A mode with more than one partition
// creates a batch; anything else a single run. Both answer 202 before any
// crawling happens.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}
	partitions := req.partitions()

	if req.Mode != "" && len(partitions) > 1 {
		batch, err := s.runs.SubmitBatch(r.Context(), runner.BatchRequest{
			Source:      req.Source,
			Partitions:  partitions,
			Mode:        crawler.BatchMode(req.Mode),
			TriggeredBy: req.TriggeredBy,
			Reason:      req.Reason,
		})
		if err != nil {
			s.submitError(w, "submit batch", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"batch_id": batch.ID, "job_ids": batch.JobIDs})
		return
	}

	job, err := s.runs.Submit(r.Context(), runner.Request{
		Kind:        crawler.JobKindManual,
		Source:      req.Source,
		Partitions:  partitions,
		TriggeredBy: req.TriggeredBy,
		Reason:      req.Reason,
	})
	if err != nil {
		s.submitError(w, "submit run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// submitReparse handles POST /v1/reparse.
func (s *Server) submitReparse(w http.ResponseWriter, r *http.Request) {
	var req reparseRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}
	job, err := s.runs.SubmitReparse(r.Context(), runner.ReparseRequest{
		Source:      req.Source,
		ExternalID:  strings.TrimSpace(req.ExternalID),
		TriggeredBy: req.TriggeredBy,
	})
	if err != nil {
		s.submitError(w, "submit reparse", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) submitError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, runner.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to start run")
}

// listRuns handles GET /v1/runs?source=&status=&limit=&offset=, newest
// first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.JobFilter{
		Source: strings.TrimSpace(r.URL.Query().Get("source")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := jobcontrol.ParseStatus(strings.ToLower(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	jobs, err := s.controls.ListJobs(ctx, filter)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if jobs == nil {
		jobs = []crawler.CrawlJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// getRun handles GET /v1/runs/{job_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	job, err := s.controls.GetJob(ctx, chi.URLParam(r, "job_id"))
	if err != nil {
		s.storeError(w, "get run", "job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// listItems handles GET /v1/runs/{job_id}/items?limit=&offset=.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultItemsLimit, maxItemsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID := chi.URLParam(r, "job_id")
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if _, err := s.controls.GetJob(ctx, jobID); err != nil {
		s.storeError(w, "get run", "job", err)
		return
	}
	items, err := s.controls.ListItems(ctx, jobID, limit, offset)
	if err != nil {
		s.logger.Error("list items failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []crawler.CrawlItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// controlRun handles POST /v1/runs/{job_id}/{action}. It answers 200 with
// the job's status after the change, 404 for an unknown job and 409 when
// the job's status does not allow the action.
func (s *Server) controlRun(w http.ResponseWriter, r *http.Request) {
	action, err := jobcontrol.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	control, _ := store.ControlFunc(s.controls, action)
	jobID := chi.URLParam(r, "job_id")
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	ok, err := control(ctx, jobID, s.clock.Now())
	if err != nil {
		s.storeError(w, string(action)+" run", "job", err)
		return
	}
	job, err := s.controls.GetJob(ctx, jobID)
	if err != nil {
		s.storeError(w, "get run", "job", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  string(action) + " not allowed while " + string(job.Status),
			"job_id": jobID,
			"status": string(job.Status),
		})
		return
	}
	s.logger.Info("run control applied",
		zap.String("job_id", jobID),
		zap.String("action", string(action)),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(job.Status)})
}

// getBatch handles GET /v1/batches/{batch_id}.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	batch, err := s.controls.GetBatch(ctx, chi.URLParam(r, "batch_id"))
	if err != nil {
		s.storeError(w, "get batch", "batch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

// unqueuedCount handles GET /v1/listings/unqueued-count?source=.
func (s *Server) unqueuedCount(w http.ResponseWriter, r *http.Request) {
	src := strings.TrimSpace(r.URL.Query().Get("source"))
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	n, err := s.listings.CountUnqueued(ctx, src)
	if err != nil {
		s.logger.Error("count unqueued failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count listings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src, "count": n})
}

func (s *Server) storeError(w http.ResponseWriter, op, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
