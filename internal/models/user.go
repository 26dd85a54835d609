package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole distinguishes platform operators from institution issuers.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleInstitution UserRole = "INSTITUTION"
)

// User is an institution account allowed to issue certificates.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Institution  string     `db:"institution" json:"institution"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// JWTClaims are the access-token claims.
type JWTClaims struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Institution string   `json:"institution"`
	Role        UserRole `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse carries the issued token and account info.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int64     `json:"expiresIn"`
	IssuedAt    time.Time `json:"issuedAt"`
	User        UserInfo  `json:"user"`
}

// UserInfo is the public subset of a user account.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Institution string   `json:"institution"`
	Role        UserRole `json:"role"`
}
