package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/meur/anythink/internal/apperror"
	"github.com/meur/anythink/internal/models"
	"github.com/meur/anythink/internal/storage"
)

type contextKey string

const userKey contextKey = "user"

// UserFinder loads the user a token was issued for.
type UserFinder interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// Authenticate resolves the user from an "Authorization: Token x" or
// "Authorization: Bearer x" header. A missing, malformed or unusable token
// leaves the request anonymous; RequireUser turns that into a 401 on
// protected routes. A failed user lookup is a 500.
func Authenticate(issuer *TokenIssuer, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !isTokenScheme(parts[0]) {
				next.ServeHTTP(w, r)
				return
			}

			id, err := issuer.Parse(parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			u, err := users.GetUserByID(r.Context(), id)
			if errors.Is(err, storage.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeError(w, apperror.NewDatabaseError("failed to load user", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireUser rejects requests that carry no authenticated user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			writeError(w, apperror.NewUnauthorizedError("authentication required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isTokenScheme(s string) bool {
	return strings.EqualFold(s, "Token") || strings.EqualFold(s, "Bearer")
}

func writeError(w http.ResponseWriter, appErr *apperror.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())
	json.NewEncoder(w).Encode(appErr.ToResponse())
}
