// Package searchapi implements C12: the HTTP surface over the search
// Orchestrator, with Bearer-or-bare-secret authentication, grounded on
// internal/a2a/auth/auth.go's TokenAuthenticator and
// internal/httpapi/server.go's ServeMux routing.
package searchapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"manifold/internal/bridge/bridgelog"
	"manifold/internal/bridge/search"
)

// Server exposes the /api/search endpoint.
type Server struct {
	Orchestrator *search.Orchestrator
	Secret       string
	Log          bridgelog.Logger
}

func New(orchestrator *search.Orchestrator, secret string, log bridgelog.Logger) *Server {
	if log == nil {
		log = bridgelog.Noop()
	}
	return &Server{Orchestrator: orchestrator, Secret: secret, Log: log}
}

// Register wires the search route onto mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", s.handleSearch)
}

// authenticate accepts either "Authorization: Bearer <secret>" or the bare
// secret in the same header, matching the spec's "Bearer-or-bare-secret"
// auth contract — both compared in constant time.
func (s *Server) authenticate(r *http.Request) bool {
	if s.Secret == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(got) > len(prefix) && got[:len(prefix)] == prefix {
		got = got[len(prefix):]
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.Secret)) == 1
}

type searchResponse struct {
	Results []resultDTO `json:"results"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

type resultDTO struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	RRFScore float64        `json:"rrf_score,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.authenticate(r) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing required query parameter: q")
		return
	}

	limit := parseIntDefault(q.Get("limit"), 10)
	offset := parseIntDefault(q.Get("offset"), 0)
	mode := search.Mode(q.Get("mode"))
	if mode == "" {
		mode = search.ModeHybrid
	}

	filters := search.Filters{
		Domain:   q.Get("domain"),
		Language: q.Get("language"),
		Country:  q.Get("country"),
	}
	if v := q.Get("is_mobile"); v != "" {
		b := v == "true" || v == "1"
		filters.IsMobile = &b
	}

	results, total, err := s.Orchestrator.Search(r.Context(), query, mode, limit, offset, filters)
	if err != nil {
		s.Log.Error("search failed", map[string]any{"query": query, "error": err.Error()})
		respondError(w, http.StatusBadGateway, "search failed")
		return
	}

	dtos := make([]resultDTO, len(results))
	for i, res := range results {
		dtos[i] = resultDTO{ID: res.ID, Score: res.Score, RRFScore: res.RRFScore, Payload: res.Payload, Metadata: res.Metadata}
	}

	respondJSON(w, http.StatusOK, searchResponse{Results: dtos, Total: total, Limit: limit, Offset: offset})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"error": msg})
}
