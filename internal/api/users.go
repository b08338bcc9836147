package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.users.Register(r.Context(), req.User)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.users.Login(r.Context(), req.User)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.users.Current(r.Context(), requester)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	var req models.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.users.UpdateCurrent(r.Context(), requester, req.User)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetProfile returns a public profile by username
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.users.Profile(r.Context(), requester, chi.URLParam(r, "username"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.users.Follow(r.Context(), requester, chi.URLParam(r, "username"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	requester, _ := auth.UserFromContext(r.Context())

	resp, err := s.users.Unfollow(r.Context(), requester, chi.URLParam(r, "username"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
