// Package users handles accounts, sign-in and profiles.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/meur/anythink/internal/apperror"
	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/models"
	"github.com/meur/anythink/internal/storage"
	"github.com/meur/anythink/internal/validation"
)

// Repository is the user persistence the service depends on.
type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	Follow(ctx context.Context, followerID, followedID int64) error
	Unfollow(ctx context.Context, followerID, followedID int64) error
	FollowedUserIDs(ctx context.Context, followerID int64, userIDs []int64) (map[int64]bool, error)
}

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	log    *logrus.Logger
}

func NewService(repo Repository, tokens *auth.TokenIssuer, log *logrus.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, log: log}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in models.RegisterInput) (*models.UserResponse, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperror.NewInternalError("failed to register", err)
	}
	u := &models.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, storeError("failed to register", err)
	}

	s.log.WithField("username", u.Username).Info("user registered")
	return s.respond(u)
}

// Login checks credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, in models.LoginInput) (*models.UserResponse, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.NewDatabaseError("failed to sign in", err)
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, in.Password) {
		return nil, invalidCredentials()
	}
	return s.respond(u)
}

// Current returns the signed-in user.
func (s *Service) Current(ctx context.Context, requester *models.User) (*models.UserResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	return s.respond(requester)
}

// UpdateCurrent applies a partial update to the signed-in user. An empty
// password leaves the password unchanged.
func (s *Service) UpdateCurrent(ctx context.Context, requester *models.User, upd models.UserUpdate) (*models.UserResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	if upd.Password != nil && *upd.Password == "" {
		upd.Password = nil
	}
	if upd.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &e
	}
	if upd.Username != nil {
		n := strings.TrimSpace(*upd.Username)
		if n == "" {
			return nil, apperror.NewFieldError("username", "can't be blank")
		}
		upd.Username = &n
	}
	if upd.Email != nil && *upd.Email == "" {
		return nil, apperror.NewFieldError("email", "can't be blank")
	}
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	u := *requester
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Bio != nil {
		u.Bio = upd.Bio
	}
	if upd.Image != nil {
		u.Image = upd.Image
	}
	if upd.Password != nil {
		hash, err := auth.HashPassword(*upd.Password)
		if err != nil {
			return nil, apperror.NewInternalError("failed to update user", err)
		}
		u.PasswordHash = hash
	}

	if err := s.repo.UpdateUser(ctx, &u); err != nil {
		return nil, storeError("failed to update user", err)
	}
	return s.respond(&u)
}

// Profile returns the public profile of username as seen by requester.
func (s *Service) Profile(ctx context.Context, requester *models.User, username string) (*models.ProfileResponse, error) {
	target, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	following := false
	if requester != nil {
		ids, err := s.repo.FollowedUserIDs(ctx, requester.ID, []int64{target.ID})
		if err != nil {
			return nil, apperror.NewDatabaseError("failed to load profile", err)
		}
		following = ids[target.ID]
	}
	return &models.ProfileResponse{Profile: target.Profile(following)}, nil
}

// Follow makes requester follow username. Repeating it is harmless.
func (s *Service) Follow(ctx context.Context, requester *models.User, username string) (*models.ProfileResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	target, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == requester.ID {
		return nil, apperror.NewFieldError("profile", "cannot follow yourself")
	}
	if err := s.repo.Follow(ctx, requester.ID, target.ID); err != nil {
		return nil, apperror.NewDatabaseError("failed to follow", err)
	}
	return &models.ProfileResponse{Profile: target.Profile(true)}, nil
}

func (s *Service) Unfollow(ctx context.Context, requester *models.User, username string) (*models.ProfileResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	target, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Unfollow(ctx, requester.ID, target.ID); err != nil {
		return nil, apperror.NewDatabaseError("failed to unfollow", err)
	}
	return &models.ProfileResponse{Profile: target.Profile(false)}, nil
}

func (s *Service) lookup(ctx context.Context, username string) (*models.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.NewNotFoundError("profile", "not found")
	}
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to load profile", err)
	}
	return u, nil
}

func (s *Service) respond(u *models.User) (*models.UserResponse, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperror.NewInternalError("failed to issue token", err)
	}
	return &models.UserResponse{User: models.UserRecord{
		Username: u.Username,
		Email:    u.Email,
		Bio:      u.Bio,
		Image:    u.Image,
		Token:    token,
	}}, nil
}

func storeError(msg string, err error) error {
	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		return apperror.NewConflictError(conflict.Field)
	}
	return apperror.NewDatabaseError(msg, err)
}

func invalidCredentials() error {
	e := apperror.NewUnauthorizedError("email or password is invalid", nil)
	e.Fields = map[string][]string{"email or password": {"is invalid"}}
	return e
}
