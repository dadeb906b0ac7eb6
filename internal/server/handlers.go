package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tarotvision/tarotvision/internal/index"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Deck  string `json:"deck"`
	Query string `json:"query"`
	K     int    `json:"k"`
}

// QueryResponse is the result envelope for a query.
type QueryResponse struct {
	Deck    string        `json:"deck"`
	Query   string        `json:"query"`
	Matches []index.Match `json:"matches"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query text is required")
		return
	}
	if req.Deck == "" {
		req.Deck = s.defaultDeck
	}
	if req.K <= 0 {
		req.K = s.defaultTopK
	}
	s.logger.Debug("query request",
		zap.String("deck", req.Deck),
		zap.String("query", req.Query),
		zap.Int("k", req.K))
	matches, err := s.query.Run(r.Context(), req.Deck, req.Query, req.K)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &QueryResponse{Deck: req.Deck, Query: req.Query, Matches: matches})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
