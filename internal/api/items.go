package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/models"
)

// handleListItems returns a filtered page of items
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()

	resp, err := s.items.List(r.Context(), requester, models.ListParams{
		Tag:       q.Get("tag"),
		Seller:    q.Get("seller"),
		Favorited: q.Get("favorited"),
		Offset:    queryInt(r, "offset"),
		Limit:     queryLimit(r),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleFeed returns items from sellers the requester follows
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.items.Feed(r.Context(), requester, queryInt(r, "offset"), queryLimit(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	var req models.ItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.items.Create(r.Context(), requester, req.Item)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.items.Show(r.Context(), requester, chi.URLParam(r, "slug"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	var req models.ItemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.items.Update(r.Context(), requester, chi.URLParam(r, "slug"), req.Item)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	if err := s.items.Destroy(r.Context(), requester, chi.URLParam(r, "slug")); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.items.Favorite(r.Context(), requester, chi.URLParam(r, "slug"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnfavorite(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.items.Unfavorite(r.Context(), requester, chi.URLParam(r, "slug"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	resp, err := s.items.Tags(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// queryInt parses a non-negative integer query parameter. Missing or
// invalid values yield 0.
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// queryLimit returns the "limit" parameter, or nil when it is missing or
// not a non-negative integer so the operation default applies.
func queryLimit(r *http.Request) *int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
