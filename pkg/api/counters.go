package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/counter"
)

// migrator builds a reconciler over the registry's current repo set.
func (s *Server) migrator() *counter.Migrator {
	var targets []counter.ScanTarget
	for _, rc := range s.registry.ScanTargets() {
		targets = append(targets, counter.ScanTarget{Name: rc.Name, Path: rc.Path})
	}
	return counter.NewMigrator(s.counters, targets)
}

// stamped wraps a payload with the response timestamp.
func stamped(payload map[string]any) map[string]any {
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return payload
}

func (s *Server) handleCounterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"statistics": s.counters.GetStatistics(),
		"counters":   s.counters.GetCurrentCounters(),
	}))
}

func (s *Server) handleCounterAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: %s", raw)
			return
		}
		limit = parsed
	}
	entries := s.counters.GetAuditLog(limit)
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"entries": entries,
		"count":   len(entries),
	}))
}

func (s *Server) handleCounterValidate(w http.ResponseWriter, r *http.Request) {
	validator := counter.NewValidator(s.counters, s.migrator())
	result, err := validator.Validate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"status":      result.Status,
		"checks":      result.Checks,
		"suggestions": result.Suggestions,
	}))
}

func (s *Server) handleCounterMigrate(w http.ResponseWriter, r *http.Request) {
	ops, err := s.migrator().Migrate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"operations": ops,
		"count":      len(ops),
	}))
}

func (s *Server) handleCounterPreview(w http.ResponseWriter, r *http.Request) {
	ops, err := s.migrator().Preview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"operations": ops,
		"count":      len(ops),
	}))
}

// handleCounterRepair applies the auto-applicable suggestions of a validation
// result. The client may post a previous validation result; an empty body
// triggers a fresh validation first.
func (s *Server) handleCounterRepair(w http.ResponseWriter, r *http.Request) {
	validator := counter.NewValidator(s.counters, s.migrator())

	var result counter.ValidationResult
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: %v", err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			writeError(w, http.StatusBadRequest, "invalid validation result: %v", err)
			return
		}
	} else {
		result, err = validator.Validate()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "%v", err)
			return
		}
	}

	repair := validator.Repair(result)
	writeJSON(w, http.StatusOK, stamped(map[string]any{
		"successCount": repair.SuccessCount,
		"skipped":      repair.Skipped,
		"errors":       repair.Errors,
	}))
}
