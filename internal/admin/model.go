package admin

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an administrator account for the Mock Studio
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Claims is the JWT payload issued on admin login
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token
type LoginResponse struct {
	Token string `json:"token"`
}
