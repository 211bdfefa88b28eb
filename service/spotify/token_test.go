package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Initialize())
	t.Cleanup(func() { database.Close() })
	return database
}

func seedAccount(t *testing.T, database *db.DB, expiresAt int64, refreshToken string) *models.Account {
	t.Helper()
	user, err := database.CreateUser("listener@example.com", nil)
	require.NoError(t, err)
	acct, err := database.UpsertAccount(&models.Account{
		UserID:       user.ID,
		Provider:     "spotify",
		ExternalID:   "ext-1",
		AccessToken:  "old-at",
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
	return acct
}

func newTokenManager(t *testing.T, database *db.DB, handler http.HandlerFunc) *TokenManager {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conf := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: server.URL + "/token"},
	}
	return NewTokenManager(database, conf, time.Minute, zerolog.Nop())
}

func TestGetValidAccessTokenReturnsLiveToken(t *testing.T) {
	database := newTestDB(t)
	acct := seedAccount(t, database, time.Now().Add(time.Hour).Unix(), "rt-1")

	var calls atomic.Int32
	tm := newTokenManager(t, database, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	token, err := tm.GetValidAccessToken(context.Background(), acct)
	require.NoError(t, err)
	require.Equal(t, "old-at", token)
	require.Zero(t, calls.Load())
}

func TestGetValidAccessTokenRefreshesInsideMargin(t *testing.T) {
	database := newTestDB(t)
	acct := seedAccount(t, database, time.Now().Add(-time.Minute).Unix(), "rt-1")

	tm := newTokenManager(t, database, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "rt-1", r.FormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-at","refresh_token":"rt-2","token_type":"Bearer","expires_in":3600}`))
	})

	token, err := tm.GetValidAccessToken(context.Background(), acct)
	require.NoError(t, err)
	require.Equal(t, "new-at", token)
	require.Equal(t, "rt-2", acct.RefreshToken)

	stored, err := database.GetAccount(acct.UserID, "spotify")
	require.NoError(t, err)
	require.Equal(t, "new-at", stored.AccessToken)
	require.Equal(t, "rt-2", stored.RefreshToken)
	require.Greater(t, stored.ExpiresAt, time.Now().Unix())
}

func TestGetValidAccessTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	database := newTestDB(t)
	acct := seedAccount(t, database, time.Now().Add(-time.Minute).Unix(), "rt-1")

	tm := newTokenManager(t, database, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-at","token_type":"Bearer","expires_in":3600}`))
	})

	_, err := tm.GetValidAccessToken(context.Background(), acct)
	require.NoError(t, err)

	stored, err := database.GetAccount(acct.UserID, "spotify")
	require.NoError(t, err)
	require.Equal(t, "rt-1", stored.RefreshToken)
}

func TestGetValidAccessTokenWithoutRefreshToken(t *testing.T) {
	database := newTestDB(t)
	acct := seedAccount(t, database, time.Now().Add(-time.Minute).Unix(), "")

	tm := newTokenManager(t, database, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := tm.GetValidAccessToken(context.Background(), acct)
	require.Error(t, err)
}
