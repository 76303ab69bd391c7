package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstuck-app/unstuck/internal/store"
)

type fakeProvider struct {
	identity Identity
	err      error
	lastCode string
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string) (Identity, error) {
	f.lastCode = code
	if f.err != nil {
		return Identity{}, f.err
	}
	return f.identity, nil
}

func newTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestExchangeCodeCreatesUserAndSession(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{identity: Identity{Subject: "sub-1", Email: "a@example.com"}}
	svc := NewService(db, provider, time.Hour)

	token, user, err := svc.ExchangeCode(context.Background(), "code-123")
	require.NoError(t, err)
	assert.Equal(t, "code-123", provider.lastCode)
	assert.Equal(t, "sub-1", user.ID)
	assert.Equal(t, "a@example.com", user.Email)
	assert.NotEmpty(t, token)

	got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestExchangeCodeUpsertsExistingUser(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{identity: Identity{Subject: "sub-1", Email: "a@example.com"}}
	svc := NewService(db, provider, time.Hour)

	_, first, err := svc.ExchangeCode(context.Background(), "c1")
	require.NoError(t, err)
	_, second, err := svc.ExchangeCode(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, "sub-1")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExchangeCodeRejected(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{err: ErrCodeRejected}
	svc := NewService(db, provider, time.Hour)

	_, _, err := svc.ExchangeCode(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrCodeRejected)
}

func TestExchangeCodeWithoutProvider(t *testing.T) {
	svc := NewService(newTestDB(t), nil, time.Hour)

	_, _, err := svc.ExchangeCode(context.Background(), "code")
	assert.Error(t, err)
}

func TestAuthenticateRejectsUnknownAndEmptyTokens(t *testing.T) {
	svc := NewService(newTestDB(t), nil, time.Hour)

	_, err := svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = svc.Authenticate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestAuthenticateRejectsExpiredSession(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, time.Millisecond)

	token, err := svc.CreateSessionForUser("u1", "u1@example.com")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenIsStoredHashed(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil, time.Hour)

	token, err := svc.CreateSessionForUser("u1", "u1@example.com")
	require.NoError(t, err)

	var stored string
	row := db.QueryRow(`SELECT token_hash FROM sessions WHERE user_id = ?`, "u1")
	require.NoError(t, row.Scan(&stored))
	assert.NotEqual(t, token, stored)
	assert.Equal(t, hashToken(token), stored)
}
