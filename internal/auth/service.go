package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unstuck-app/unstuck/internal/store"
)

var (
	// ErrNoSession is returned when a bearer token does not match a
	// live session.
	ErrNoSession = errors.New("no valid session")
)

// Service manages sessions against the shared database.
type Service struct {
	db         *store.DB
	provider   IdentityProvider
	sessionTTL time.Duration
}

// NewService creates an auth service. provider may be nil when no
// identity provider is configured; ExchangeCode then always fails and
// only pre-existing sessions authenticate.
func NewService(db *store.DB, provider IdentityProvider, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &Service{db: db, provider: provider, sessionTTL: sessionTTL}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// ExchangeCode resolves an authorization code through the identity
// provider, upserts the user, and opens a session. Returns the bearer
// token exactly once; only its hash is stored.
func (s *Service) ExchangeCode(ctx context.Context, code string) (string, User, error) {
	if s.provider == nil {
		return "", User{}, fmt.Errorf("no identity provider configured")
	}

	ident, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return "", User{}, err
	}

	user, err := s.upsertUser(ident)
	if err != nil {
		return "", User{}, err
	}

	token, err := generateToken()
	if err != nil {
		return "", User{}, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), user.ID, hashToken(token), store.FormatTime(now), store.FormatTime(now.Add(s.sessionTTL)))
	if err != nil {
		return "", User{}, fmt.Errorf("insert session: %w", err)
	}

	return token, user, nil
}

func (s *Service) upsertUser(ident Identity) (User, error) {
	row := s.db.QueryRow(`SELECT id, email, created_at FROM users WHERE id = ?`, ident.Subject)

	var (
		u         User
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Email, &createdAt)
	if err == nil {
		if t, perr := store.ParseTime(createdAt); perr == nil {
			u.CreatedAt = t
		}
		return u, nil
	}
	if err != sql.ErrNoRows {
		return User{}, fmt.Errorf("query user: %w", err)
	}

	now := time.Now().UTC()
	u = User{ID: ident.Subject, Email: ident.Email, CreatedAt: now}
	_, err = s.db.Exec(`
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
	`, u.ID, u.Email, store.FormatTime(now))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate resolves a bearer token to its user. Expired or unknown
// tokens return ErrNoSession.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNoSession
	}

	row := s.db.QueryRow(`
		SELECT u.id, u.email, u.created_at, sess.expires_at
		FROM sessions sess JOIN users u ON u.id = sess.user_id
		WHERE sess.token_hash = ?
	`, hashToken(token))

	var (
		u         User
		createdAt string
		expiresAt string
	)
	err := row.Scan(&u.ID, &u.Email, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("query session: %w", err)
	}

	exp, err := store.ParseTime(expiresAt)
	if err != nil || time.Now().After(exp) {
		return User{}, ErrNoSession
	}

	if t, err := store.ParseTime(createdAt); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

// CreateSessionForUser inserts a user (if needed) and opens a session
// directly, bypassing the provider. Used by tests and local tooling.
func (s *Service) CreateSessionForUser(userID, email string) (string, error) {
	if _, err := s.upsertUser(Identity{Subject: userID, Email: email}); err != nil {
		return "", err
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), userID, hashToken(token), store.FormatTime(now), store.FormatTime(now.Add(s.sessionTTL)))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}
