package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/server/middleware"
	"github.com/jonathan/resource-pipeline/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// authorize resolves the caller and checks capability.
func (s *Server) authorize(r *http.Request, capability auth.Capability) (types.Caller, error) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return types.Caller{}, &ErrUnauthenticated{}
	}
	if err := s.authz.Authorize(r.Context(), caller, capability); err != nil {
		return types.Caller{}, err
	}
	return caller, nil
}

// decodeJSON decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

func pathJobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	}
	return min(limit, maxListLimit), nil
}

// runAsync runs a pending job in the background. The run is not tied to the
// request context.
func (s *Server) runAsync(jobID uuid.UUID) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		job, err := s.orch.Run(s.runCtx, jobID)
		if err != nil {
			s.logger.Error("background run failed", zap.String("job_id", jobID.String()), zap.Error(err))
			return
		}
		s.logger.Info("background run finished",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)))
	}()
}

// handleCreateJob handles POST /resources/{slug}/jobs.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authorize(r, auth.CapTriggerJob)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	var req types.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if req.Trigger == "" {
		req.Trigger = types.TriggerManual
	}
	policy := types.PolicyReview
	if req.AutoApply {
		policy = types.PolicyAutomatic
	}

	actor := caller.ID
	job, err := s.orch.CreateJob(r.Context(), r.PathValue("slug"), req.Trigger, &actor, policy)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	if req.Run {
		s.runAsync(job.ID)
		s.jsonResponse(w, http.StatusAccepted, job)
		return
	}
	s.jsonResponse(w, http.StatusCreated, job)
}

// handleRunJob handles POST /jobs/{id}/run.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapTriggerJob); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	id, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	job, err := s.orch.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if job.Status != types.StatusPending {
		s.errorResponse(w, r, &pipeline.NotRunnableError{JobID: job.ID, Status: job.Status})
		return
	}
	s.runAsync(job.ID)
	s.jsonResponse(w, http.StatusAccepted, job)
}

// handleGetJob handles GET /jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapViewJobs); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	id, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	job, err := s.orch.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleListJobs handles GET /jobs?resource=&status=&limit=.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapViewJobs); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	filter := db.JobFilter{Limit: limit}

	if slug := r.URL.Query().Get("resource"); slug != "" {
		resource, err := s.store.GetResourceBySlug(r.Context(), slug)
		if err != nil {
			s.errorResponse(w, r, err)
			return
		}
		filter.ResourceID = &resource.ID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := types.JobStatus(strings.TrimSpace(part))
			if !status.Valid() {
				s.errorResponse(w, r, &ErrValidation{Field: "status", Message: "unknown status " + string(status)})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	jobs, err := s.orch.ListJobs(r.Context(), filter)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.UpdateJob{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleApprove handles POST /jobs/{id}/approve.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		s.errorResponse(w, r, &ErrUnauthenticated{})
		return
	}
	id, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	var req types.ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, r, err)
		return
	}

	job, err := s.review.Approve(r.Context(), caller, id, req.Fields, req.Notes)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleReject handles POST /jobs/{id}/reject.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		s.errorResponse(w, r, &ErrUnauthenticated{})
		return
	}
	id, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	var req types.RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	// Blank notes are reported by the review service as a missing reason.
	if strings.TrimSpace(req.Notes) != "" {
		if err := req.Validate(); err != nil {
			s.errorResponse(w, r, err)
			return
		}
	}

	job, err := s.review.Reject(r.Context(), caller, id, req.Notes)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleGetResource handles GET /resources/{slug}.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapViewJobs); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	resource, err := s.store.GetResourceBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resource)
}

// handleListChangelog handles GET /resources/{slug}/changelog.
func (s *Server) handleListChangelog(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapViewJobs); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	resource, err := s.store.GetResourceBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	entries, err := s.store.ListChangelog(r.Context(), resource.ID, limit)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.ChangelogEntry{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleJobEvents handles GET /jobs/{id}/events, streaming stage transitions
// until the job settles.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r, auth.CapViewJobs); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	id, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	events, unsubscribe := s.progress.Subscribe(id)
	defer unsubscribe()

	job, err := s.orch.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if err := sse.WriteEvent("status", pipeline.ProgressEvent{JobID: job.ID, Slug: job.ResourceSlug, Status: job.Status}); err != nil {
		return
	}
	if settled(job.Status) {
		_ = sse.WriteEvent("complete", map[string]string{"job_id": job.ID.String(), "status": string(job.Status)})
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent("status", event); err != nil {
				return
			}
			if settled(event.Status) {
				_ = sse.WriteEvent("complete", map[string]string{"job_id": event.JobID.String(), "status": string(event.Status)})
				return
			}
		}
	}
}

// settled reports whether a job will not move without outside action.
func settled(status types.JobStatus) bool {
	return status == types.StatusReadyForReview || status.Terminal()
}
