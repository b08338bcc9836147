package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meur/anythink/internal/models"
	"github.com/meur/anythink/internal/storage"
)

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

type brokenUsers struct{}

func (brokenUsers) GetUserByID(context.Context, int64) (*models.User, error) {
	return nil, errors.New("database is locked")
}

func TestTokenIssuer_IssueParse_roundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	tok, err := issuer.Issue(&models.User{ID: 42, Username: "alice"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := issuer.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestTokenIssuer_Parse_rejects(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	other := NewTokenIssuer("other", time.Hour)
	foreign, _ := other.Issue(&models.User{ID: 1})

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := expired.Issue(&models.User{ID: 1})

	zero, _ := issuer.Issue(&models.User{ID: 0})

	for name, tok := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
		"expired":      stale,
		"zero subject": zero,
	} {
		if _, err := issuer.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestPassword_hashAndCheck(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "correct horse" {
		t.Fatal("password stored in clear")
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("valid password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("invalid password accepted")
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	alice := &models.User{ID: 1, Username: "alice"}
	users := fakeUsers{1: alice}
	tok, _ := issuer.Issue(alice)
	ghost, _ := issuer.Issue(&models.User{ID: 99})

	var seen *models.User
	handler := Authenticate(issuer, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   *models.User
	}{
		{"anonymous", "", http.StatusNoContent, nil},
		{"token scheme", "Token " + tok, http.StatusNoContent, alice},
		{"bearer scheme", "Bearer " + tok, http.StatusNoContent, alice},
		{"unknown scheme", "Basic " + tok, http.StatusNoContent, nil},
		{"bad token", "Token nope", http.StatusNoContent, nil},
		{"deleted user", "Token " + ghost, http.StatusNoContent, nil},
	}
	for _, c := range cases {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != c.wantStatus {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.wantStatus)
		}
		if seen != c.wantUser {
			t.Errorf("%s: user = %v, want %v", c.name, seen, c.wantUser)
		}
	}
}

func TestAuthenticate_unusableTokenStillFailsRequireUser(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	handler := Authenticate(issuer, fakeUsers{})(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"errors"`) {
		t.Fatalf("status = %d body = %s, want 401 with errors", rec.Code, rec.Body.String())
	}
}

func TestAuthenticate_lookupFailureIs500(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	tok, _ := issuer.Issue(&models.User{ID: 1, Username: "alice"})
	called := false
	handler := Authenticate(issuer, brokenUsers{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError || called {
		t.Fatalf("status = %d called = %v, want 500 without calling next", rec.Code, called)
	}
}

func TestRequireUser(t *testing.T) {
	t.Parallel()

	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &models.User{ID: 1}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated: status = %d, want 200", rec.Code)
	}
}
