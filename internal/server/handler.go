// Package server exposes the engine's query, analysis and maintenance
// operations over JSON HTTP. It is a thin transport; all semantics live in
// the engine packages.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quillnotes/quill/internal/embedding"
	"github.com/quillnotes/quill/internal/organize"
	"github.com/quillnotes/quill/internal/search"
)

// Handler serves the engine endpoints.
type Handler struct {
	ranker   *search.Ranker
	analyzer *organize.Analyzer
	cache    *embedding.Cache
}

// NewHandler creates a handler over the engine components.
func NewHandler(ranker *search.Ranker, analyzer *organize.Analyzer, cache *embedding.Cache) *Handler {
	return &Handler{
		ranker:   ranker,
		analyzer: analyzer,
		cache:    cache,
	}
}

// Register mounts the endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/search", h.handleSearch)
	mux.HandleFunc("POST /v1/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /v1/maintenance/regenerate", h.handleRegenerate)
}

type searchRequest struct {
	OwnerID int64  `json:"owner_id"`
	Query   string `json:"query"`
}

type searchResult struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Score            float64   `json:"score"`
	SemanticScore    float64   `json:"semantic_score"`
	LexicalMatch     bool      `json:"lexical_match"`
	Folder           string    `json:"folder,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	ContentUpdatedAt time.Time `json:"content_updated_at"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.ranker.Search(r.Context(), req.OwnerID, req.Query)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	response := searchResponse{Results: make([]searchResult, 0, len(results))}
	for _, result := range results {
		item := searchResult{
			ID:               result.Note.ID,
			Title:            result.Note.Title,
			Score:            result.Score,
			SemanticScore:    result.SemanticScore,
			LexicalMatch:     result.LexicalMatch,
			ContentUpdatedAt: result.Note.ContentUpdatedAt,
		}
		if result.Note.Folder != nil {
			item.Folder = result.Note.Folder.Name
		}
		for _, tag := range result.Note.Tags {
			item.Tags = append(item.Tags, tag.Name)
		}
		response.Results = append(response.Results, item)
	}
	writeJSON(w, http.StatusOK, response)
}

type analyzeRequest struct {
	OwnerID int64  `json:"owner_id"`
	Content string `json:"content"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	suggestion, err := h.analyzer.Analyze(r.Context(), req.OwnerID, req.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

type regenerateResponse struct {
	Invalidated int64 `json:"invalidated"`
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	count, err := h.cache.InvalidateAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, regenerateResponse{Invalidated: count})
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, embedding.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Default().Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
