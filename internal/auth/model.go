// Package auth resolves bearer sessions to users. The identity itself
// is delegated to an external provider; this package only exchanges
// authorization codes for local sessions and authenticates requests.
package auth

import "time"

// User is the authenticated owner of tasks and steps.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a bearer-token session. Only the token's sha256 hash is
// stored.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is what the external provider returns for a valid
// authorization code.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}
