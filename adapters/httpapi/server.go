// Package httpapi exposes read-only access to the run ledger. The API never
// triggers analyses; runs are produced by the CLI and only queried here.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
	"github.com/Arg0xel/SCM---current-work/ports"
)

// Server serves the run-ledger API.
type Server struct {
	router *chi.Mux
	ledger ports.RunLedger
}

// NewServer creates the API server around a run ledger.
func NewServer(ledger ports.RunLedger) *Server {
	s := &Server{router: chi.NewRouter(), ledger: ledger}

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)

	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := ports.RunFilters{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset > 0 {
			filters.Offset = offset
		}
	}
	if v := r.URL.Query().Get("treated_unit"); v != "" {
		id := core.UnitID(v)
		filters.TreatedUnit = &id
	}

	summaries, err := s.ledger.ListRuns(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []ports.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": summaries})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := core.RunID(chi.URLParam(r, "id"))
	result, err := s.ledger.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	log.Printf("[API] request failed (%d): %v", status, err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
