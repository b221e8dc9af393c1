package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/omniforge-ai/omniforge/pkg/chain"
)

const (
	defaultStepLimit = 100
	maxStepLimit     = 1000
)

// loadTenantChain fetches a chain and enforces tenant scope. A chain owned by
// another tenant reads as not found.
func (s *Server) loadTenantChain(w http.ResponseWriter, r *http.Request) (*chain.Chain, bool) {
	chainID := chi.URLParam(r, "chainID")

	c, err := s.chains.GetByID(r.Context(), chainID)
	if err != nil || c.TenantID != s.callerTenant(r) {
		writeError(w, http.StatusNotFound, "chain not found: "+chainID)
		return nil, false
	}
	return c, true
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadTenantChain(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.vis.Filter(c, callerRole(r)))
}

func (s *Server) handleGetChainSteps(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := stepPagination(w, r)
	if !ok {
		return
	}

	c, ok := s.loadTenantChain(w, r)
	if !ok {
		return
	}

	steps := s.vis.FilterSteps(c.Steps, callerRole(r))
	total := len(steps)

	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain_id": c.ID,
		"steps":    steps[offset:end],
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleDeleteChain(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadTenantChain(w, r)
	if !ok {
		return
	}

	if _, err := s.chains.Delete(r.Context(), c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete chain")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, err := s.tasks.Get(r.Context(), s.callerTenant(r), taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found: "+taskID)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetTaskChains(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	tenant := s.callerTenant(r)

	if _, err := s.tasks.Get(r.Context(), tenant, taskID); err != nil {
		writeError(w, http.StatusNotFound, "task not found: "+taskID)
		return
	}

	all, err := s.chains.GetByTask(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chains")
		return
	}

	role := callerRole(r)
	filtered := make([]*chain.Chain, 0, len(all))
	for _, c := range all {
		if c.TenantID != tenant {
			continue
		}
		filtered = append(filtered, s.vis.Filter(c, role))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chains": filtered})
}

func (s *Server) handleListTenantChains(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID != s.callerTenant(r) {
		writeError(w, http.StatusNotFound, "tenant not found: "+tenantID)
		return
	}

	limit, offset, ok := stepPagination(w, r)
	if !ok {
		return
	}
	status := chain.Status(r.URL.Query().Get("status"))

	summaries, err := s.chains.ListByTenant(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chains")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chains": summaries,
		"limit":  limit,
		"offset": offset,
	})
}

// stepPagination parses limit/offset query parameters. limit must fall in
// [1, 1000]; offset must be non-negative.
func stepPagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultStepLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxStepLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 1000]")
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}
