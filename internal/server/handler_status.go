package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/geodesymiami/minsar-sub000/internal/admission"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

const (
	errCodeNotFound = "NOT_FOUND"
	errCodeInternal = "INTERNAL"
	errCodeDisabled = "HISTORY_DISABLED"
)

type progressResponse struct {
	RunID    string           `json:"run_id,omitempty"`
	Group    string           `json:"group,omitempty"`
	Progress model.Progress   `json:"progress"`
	Usage    *admission.Usage `json:"usage,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var resp progressResponse
	if s.progress != nil {
		resp.RunID, resp.Group, resp.Progress = s.progress.Snapshot()
	}
	if s.usage != nil {
		u := s.usage.Snapshot()
		resp.Usage = &u
	}
	respondOK(w, reqID, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, errCodeDisabled, "run history is not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, errCodeInternal, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondOK(w, reqID, runs)
}

type runDetail struct {
	Run    *model.Run         `json:"run"`
	Groups []*model.StepGroup `json:"groups"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, errCodeDisabled, "run history is not configured")
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("loading run", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, errCodeInternal, "loading run failed")
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, errCodeNotFound, "run "+id+" not found")
		return
	}

	groups, err := s.store.ListGroupsByRun(r.Context(), id)
	if err != nil {
		s.logger.Error("loading groups", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, errCodeInternal, "loading run failed")
		return
	}
	if groups == nil {
		groups = []*model.StepGroup{}
	}
	respondOK(w, reqID, runDetail{Run: run, Groups: groups})
}

func (s *Server) handleListRunJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, errCodeDisabled, "run history is not configured")
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("loading run", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, errCodeInternal, "loading run failed")
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, errCodeNotFound, "run "+id+" not found")
		return
	}

	jobs, err := s.store.ListJobsByRun(r.Context(), id)
	if err != nil {
		s.logger.Error("listing jobs", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, errCodeInternal, "listing jobs failed")
		return
	}
	if jobs == nil {
		jobs = []*model.JobRecord{}
	}
	respondOK(w, reqID, jobs)
}
