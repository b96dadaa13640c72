package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/registry"
	"github.com/ctavolazzi/mission-control/pkg/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"repos":   s.registry.RepoNames(),
		"clients": clients,
	})
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"repos": s.registry.Snapshot()})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	state, ok := s.registry.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Repo not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAddRepo(w http.ResponseWriter, r *http.Request) {
	var req types.RepoConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	state, err := s.registry.AddRepo(req.Name, req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "state": state})
}

func (s *Server) handleRemoveRepo(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveRepo(r.PathValue("name")); err != nil {
		if errors.Is(err, registry.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "Repo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}
	writeJSON(w, http.StatusOK, s.registry.BulkAdd(req.Paths))
}

func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	err := s.registry.PatchStatus(r.PathValue("name"), r.PathValue("weId"), req.Status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  types.NormalizeStatus(req.Status),
		})
	case errors.Is(err, registry.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Invalid status. Must be one of: %s",
			strings.Join(types.WorkEffortStatuses, ", "))
	case errors.Is(err, registry.ErrWorkEffortNotFound):
		writeError(w, http.StatusNotFound, "Work effort not found")
	case errors.Is(err, registry.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, "Repo not found")
	default:
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}
