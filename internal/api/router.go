package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/meur/anythink/internal/apperror"
	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/items"
	"github.com/meur/anythink/internal/users"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Items       *items.Service
	Users       *users.Service
	Tokens      *auth.TokenIssuer
	UserFinder  auth.UserFinder
	Store       Pinger
	Log         *logrus.Logger
	CORSOrigins []string
	// StaticDir, when set, is served for every path outside /api and /health.
	StaticDir string
}

// Server holds the HTTP server dependencies
type Server struct {
	items       *items.Service
	users       *users.Service
	tokens      *auth.TokenIssuer
	userFinder  auth.UserFinder
	store       Pinger
	log         *logrus.Logger
	corsOrigins []string
	staticDir   string
	router      chi.Router
}

// New creates a new API server
func New(d Deps) *Server {
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{
		items:       d.Items,
		users:       d.Users,
		tokens:      d.Tokens,
		userFinder:  d.UserFinder,
		store:       d.Store,
		log:         d.Log,
		corsOrigins: origins,
		staticDir:   d.StaticDir,
		router:      chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(s.tokens, s.userFinder))

		// Items
		r.Get("/items", s.handleListItems)
		r.With(auth.RequireUser).Get("/items/feed", s.handleFeed)
		r.With(auth.RequireUser).Post("/items", s.handleCreateItem)
		r.Get("/items/{slug}", s.handleGetItem)
		r.With(auth.RequireUser).Put("/items/{slug}", s.handleUpdateItem)
		r.With(auth.RequireUser).Delete("/items/{slug}", s.handleDeleteItem)
		r.With(auth.RequireUser).Post("/items/{slug}/favorite", s.handleFavorite)
		r.With(auth.RequireUser).Delete("/items/{slug}/favorite", s.handleUnfavorite)

		r.Get("/tags", s.handleGetTags)

		// Users
		r.Post("/users", s.handleRegister)
		r.Post("/users/login", s.handleLogin)
		r.With(auth.RequireUser).Get("/user", s.handleCurrentUser)
		r.With(auth.RequireUser).Put("/user", s.handleUpdateUser)

		// Profiles
		r.Get("/profiles/{username}", s.handleGetProfile)
		r.With(auth.RequireUser).Post("/profiles/{username}/follow", s.handleFollow)
		r.With(auth.RequireUser).Delete("/profiles/{username}/follow", s.handleUnfollow)
	})

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.WithError(err).Error("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Frontend build
	if s.staticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}
}

// requestLogger logs method, path, status and duration of every request.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError renders err as {"errors": {...}}. Server-side failures are
// logged with their cause; the cause never reaches the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.FromError(err)
	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		s.log.WithError(appErr.Unwrap()).WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Error(appErr.Message)
	}
	respondJSON(w, status, appErr.ToResponse())
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.NewBadRequestError("invalid request body", err)
	}
	return nil
}
