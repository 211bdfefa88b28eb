// Package oauth runs the provider login flow with PKCE and turns a
// completed authorization into a user, an account row and an API token.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/service/spotify"
	"github.com/chorus-fm/chorus/session"
)

const flowTTL = 10 * time.Minute

// flow is one in-progress authorization, keyed by its CSRF state.
type flow struct {
	verifier string
	started  time.Time
}

type Service struct {
	db       *db.DB
	conf     *oauth2.Config
	client   *spotify.Client
	sessions *session.Manager
	logger   zerolog.Logger

	mu    sync.Mutex
	flows map[string]flow
}

func NewService(database *db.DB, conf *oauth2.Config, client *spotify.Client, sessions *session.Manager, logger zerolog.Logger) *Service {
	return &Service{
		db:       database,
		conf:     conf,
		client:   client,
		sessions: sessions,
		logger:   logger.With().Str("component", "oauth").Logger(),
		flows:    make(map[string]flow),
	}
}

// HandleLogin starts the authorization-code flow with a fresh state and
// PKCE verifier and sends the user to the provider.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := randomToken(16)
	verifier := randomToken(64)

	s.mu.Lock()
	for k, f := range s.flows {
		if time.Since(f.started) > flowTTL {
			delete(s.flows, k)
		}
	}
	s.flows[state] = flow{verifier: verifier, started: time.Now()}
	s.mu.Unlock()

	authURL := s.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// HandleCallback finishes the flow: verify state, exchange the code,
// fetch the provider profile, find or create the user and account, and
// hand back a bearer token for the API.
func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	s.mu.Lock()
	f, ok := s.flows[state]
	delete(s.flows, state)
	s.mu.Unlock()

	if !ok || time.Since(f.started) > flowTTL {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "no code provided", http.StatusBadRequest)
		return
	}

	token, err := s.conf.Exchange(r.Context(), code,
		oauth2.SetAuthURLParam("code_verifier", f.verifier))
	if err != nil {
		s.logger.Error().Err(err).Msg("code exchange failed")
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	profile, err := s.client.GetProfile(r.Context(), token.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Msg("fetching profile failed")
		http.Error(w, "fetching profile failed", http.StatusBadGateway)
		return
	}

	user, err := s.findOrCreateUser(profile)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolving user failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	scope, _ := token.Extra("scope").(string)
	_, err = s.db.UpsertAccount(&models.Account{
		UserID:       user.ID,
		Provider:     "spotify",
		ExternalID:   profile.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Unix(),
		Scope:        scope,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("storing account failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	apiToken, err := s.sessions.IssueToken(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("issuing token failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.logger.Info().Str("user", user.ID).Str("external_id", profile.ID).Msg("login completed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": apiToken, "userId": user.ID})
}

// findOrCreateUser keys on the provider account first, then the profile
// email, creating a fresh user on first login.
func (s *Service) findOrCreateUser(profile *spotify.Profile) (*models.User, error) {
	acct, err := s.db.GetAccountByExternalID(profile.ID)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		return s.db.GetUserByID(acct.UserID)
	}

	if profile.Email != "" {
		user, err := s.db.GetUserByEmail(profile.Email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	var username *string
	if profile.DisplayName != "" {
		username = &profile.DisplayName
	}
	return s.db.CreateUser(profile.Email, username)
}

func randomToken(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// codeChallenge derives the S256 challenge from a PKCE verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
