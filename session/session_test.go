package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour, zerolog.Nop())

	token, err := m.IssueToken("user-123")
	require.NoError(t, err)

	userID, err := m.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issued, err := NewManager("secret-a", time.Hour, zerolog.Nop()).IssueToken("user-123")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour, zerolog.Nop()).VerifyToken(issued)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, zerolog.Nop())
	// A non-positive ttl falls back to the default, so build the expiry
	// by hand instead.
	m.ttl = -time.Minute

	token, err := m.IssueToken("user-123")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	require.Error(t, err)
}

func TestWithAuth(t *testing.T) {
	m := NewManager("test-secret", time.Hour, zerolog.Nop())

	var gotUserID string
	handler := m.WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = GetUserID(r.Context())
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	token, err := m.IssueToken("user-123")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-123", gotUserID)
}
