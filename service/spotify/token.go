package spotify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
)

// DefaultSafetyMargin is subtracted from the stored expiry when deciding
// whether a token is still usable.
const DefaultSafetyMargin = 60 * time.Second

// TokenManager owns the access-token lifecycle for provider accounts.
// Expiry is stored as an absolute epoch-seconds value; a token counts as
// expired when expires_at < now + safety margin.
type TokenManager struct {
	db           *db.DB
	conf         *oauth2.Config
	safetyMargin time.Duration
	logger       zerolog.Logger

	now func() time.Time
}

func NewTokenManager(database *db.DB, conf *oauth2.Config, safetyMargin time.Duration, logger zerolog.Logger) *TokenManager {
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &TokenManager{
		db:           database,
		conf:         conf,
		safetyMargin: safetyMargin,
		logger:       logger.With().Str("component", "token").Logger(),
		now:          time.Now,
	}
}

// GetValidAccessToken returns the live token, refreshing it first when it
// is inside the safety margin. A refresh failure is terminal for the
// current operation but must not take down the calling loop; other
// accounts continue.
func (tm *TokenManager) GetValidAccessToken(ctx context.Context, acct *models.Account) (string, error) {
	if acct.ExpiresAt >= tm.now().Add(tm.safetyMargin).Unix() {
		return acct.AccessToken, nil
	}

	if acct.RefreshToken == "" {
		return "", fmt.Errorf("account %s: token expired and no refresh token", acct.ID)
	}

	stale := &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		Expiry:       time.Unix(acct.ExpiresAt, 0).Add(-tm.safetyMargin),
	}

	fresh, err := tm.conf.TokenSource(ctx, stale).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing token for account %s: %w", acct.ID, err)
	}

	// The provider may rotate the refresh token; when it does not, keep
	// the stored one.
	newRefresh := ""
	if fresh.RefreshToken != "" && fresh.RefreshToken != acct.RefreshToken {
		newRefresh = fresh.RefreshToken
	}

	expiresAt := fresh.Expiry.Unix()
	if err := tm.db.UpdateAccountTokens(acct.ID, fresh.AccessToken, newRefresh, expiresAt); err != nil {
		return "", fmt.Errorf("persisting refreshed token for account %s: %w", acct.ID, err)
	}

	acct.AccessToken = fresh.AccessToken
	if newRefresh != "" {
		acct.RefreshToken = newRefresh
	}
	acct.ExpiresAt = expiresAt

	tm.logger.Debug().Str("account", acct.ID).Time("expiry", fresh.Expiry).Msg("refreshed access token")
	return fresh.AccessToken, nil
}
