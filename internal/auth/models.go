package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role decides what a caller may see beyond their own trips.
type Role string

const (
	RoleTraveler Role = "traveler"
	RoleAnalyst  Role = "analyst"
	RoleAdmin    Role = "admin"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	AvatarURL    string     `json:"avatar_url"`
	Role         Role       `json:"role"`
	Active       bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Claims struct {
	UserID string    `json:"user_id"`
	Role   Role      `json:"role"`
	Kind   TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=30,alphanum"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FullName  string `json:"full_name" validate:"max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is what register and login hand back to the client.
type Session struct {
	Account Account   `json:"user"`
	Tokens  TokenPair `json:"tokens"`
}
