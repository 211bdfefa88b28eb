// Package session issues and verifies the bearer tokens the API is
// authenticated with. Tokens are signed JWTs carrying the user id as
// subject; there is no server-side session state to expire or replicate.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
)

const DefaultTTL = 30 * 24 * time.Hour

type Manager struct {
	secret []byte
	ttl    time.Duration
	logger zerolog.Logger
}

func NewManager(secret string, ttl time.Duration, logger zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// IssueToken mints a signed token for the user, done once per login.
func (m *Manager) IssueToken(userID string) (string, error) {
	now := time.Now().UTC()
	tok, err := jwt.NewBuilder().
		Subject(userID).
		Issuer("chorus").
		IssuedAt(now).
		Expiration(now.Add(m.ttl)).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// VerifyToken validates signature and expiry and returns the user id.
func (m *Manager) VerifyToken(raw string) (string, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, m.secret), jwt.WithValidate(true))
	if err != nil {
		return "", err
	}
	return tok.Subject(), nil
}

// WithAuth rejects requests without a valid bearer token and stashes the
// authenticated user id in the request context.
func (m *Manager) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		userID, err := m.VerifyToken(raw)
		if err != nil {
			m.logger.Debug().Err(err).Msg("rejected token")
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "` + msg + `"}`))
}

type contextKey int

const userIDKey contextKey = iota

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}
