package models

import "time"

// DefaultImage is shown for users without a profile image
const DefaultImage = "https://static.productionready.io/images/smiley-cyrus.jpg"

// User is an identity that can sell, follow and favorite
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Bio          *string
	Image        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user relative to a requester
type Profile struct {
	Username  string  `json:"username"`
	Bio       *string `json:"bio"`
	Image     string  `json:"image"`
	Following bool    `json:"following"`
}

// Profile builds the public profile of u.
func (u *User) Profile(following bool) Profile {
	image := DefaultImage
	if u.Image != nil && *u.Image != "" {
		image = *u.Image
	}
	return Profile{
		Username:  u.Username,
		Bio:       u.Bio,
		Image:     image,
		Following: following,
	}
}

// UserRecord is returned to the authenticated user themselves
type UserRecord struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Bio      *string `json:"bio"`
	Image    *string `json:"image"`
	Token    string  `json:"token"`
}

// RegisterInput is the request body for creating an account
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput is the request body for signing in
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserUpdate is the request body for editing the current user
type UserUpdate struct {
	Username *string `json:"username,omitempty" validate:"omitempty,max=64"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8"`
	Bio      *string `json:"bio,omitempty"`
	Image    *string `json:"image,omitempty"`
}

// RegisterRequest wraps RegisterInput: {"user": {...}}
type RegisterRequest struct {
	User RegisterInput `json:"user"`
}

// LoginRequest wraps LoginInput: {"user": {...}}
type LoginRequest struct {
	User LoginInput `json:"user"`
}

// UserUpdateRequest wraps UserUpdate: {"user": {...}}
type UserUpdateRequest struct {
	User UserUpdate `json:"user"`
}

// UserResponse wraps UserRecord: {"user": {...}}
type UserResponse struct {
	User UserRecord `json:"user"`
}

// ProfileResponse wraps Profile: {"profile": {...}}
type ProfileResponse struct {
	Profile Profile `json:"profile"`
}
