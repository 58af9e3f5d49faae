package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/store"
)

// Searcher runs full-text queries over stored messages.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.SearchHit, error)
}

const defaultSearchLimit = 20

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) apiListDiscussions(w http.ResponseWriter, r *http.Request) {
	if s.discussions == nil {
		respondError(w, http.StatusServiceUnavailable, "discussions are not configured")
		return
	}
	list, err := s.discussions.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing discussions failed")
		respondError(w, http.StatusInternalServerError, "listing discussions failed")
		return
	}
	if list == nil {
		list = []domain.Discussion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"discussions": list})
}

func (s *Server) apiDiscussionMessages(w http.ResponseWriter, r *http.Request) {
	if s.discussions == nil {
		respondError(w, http.StatusServiceUnavailable, "discussions are not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid discussion id")
		return
	}

	d, err := s.discussions.Get(r.Context(), id)
	if errors.Is(err, domain.ErrDiscussionNotFound) {
		respondError(w, http.StatusNotFound, "discussion not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Int64("discussion", id).Msg("loading discussion failed")
		respondError(w, http.StatusInternalServerError, "loading discussion failed")
		return
	}
	records, err := s.discussions.Messages(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Int64("discussion", id).Msg("loading messages failed")
		respondError(w, http.StatusInternalServerError, "loading messages failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"discussion": d, "messages": records})
}

func (s *Server) apiSearchDiscussions(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		respondError(w, http.StatusNotImplemented, "search is not available with this store")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	hits, err := s.search.Search(r.Context(), q, limit)
	if err != nil {
		s.log.Error().Err(err).Str("query", q).Msg("search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []store.SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "hits": hits})
}
