package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/internal/search"
)

const (
	maxBodyBytes       = 1 << 20
	problemContentType = "application/problem+json"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Health())
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	req := models.EmbedRequest{Normalize: true}
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Embed(r.Context(), req.Text, req.Normalize)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := models.SearchRequest{TopK: s.defaultTopK}
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("search request",
		zap.String("query", req.Query),
		zap.Int("top_k", req.TopK),
		zap.Bool("include_snippet", req.IncludeSnippet),
	)
	resp, err := s.svc.Search(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.logger.Debug("search done", zap.Int("hits", len(resp.Hits)), zap.Int64("took_ms", resp.TookMs))
	s.respondJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into v, keeping v's prefilled defaults for absent fields.
// It writes a 400 problem and returns false when the body is malformed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.logger.Debug("invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		s.respondProblem(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// respondServiceError maps caller mistakes to 400 and everything else to 500.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *search.RequestError
	if errors.As(err, &reqErr) {
		s.logger.Debug("rejected request", zap.String("path", r.URL.Path), zap.String("detail", reqErr.Detail))
		s.respondProblem(w, r, http.StatusBadRequest, reqErr.Detail)
		return
	}
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	s.respondProblem(w, r, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}
