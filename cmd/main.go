package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"
	"golang.org/x/sync/errgroup"

	"github.com/chorus-fm/chorus/config"
	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/oauth"
	"github.com/chorus-fm/chorus/service/coverart"
	"github.com/chorus-fm/chorus/service/enrich"
	"github.com/chorus-fm/chorus/service/musicbrainz"
	"github.com/chorus-fm/chorus/service/playback"
	"github.com/chorus-fm/chorus/service/spotify"
	"github.com/chorus-fm/chorus/session"
)

const provider = "spotify"

type application struct {
	logger     zerolog.Logger
	database   *db.DB
	sessions   *session.Manager
	oauth      *oauth.Service
	spotify    *spotify.Client
	tokens     *spotify.TokenManager
	engine     *playback.Engine
	reconciler *playback.Reconciler
	worker     *enrich.Worker
}

func main() {
	config.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if viper.GetBool("log.pretty") {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	database, err := db.New(viper.GetString("db.path"))
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to database")
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		logger.Fatal().Err(err).Msg("initializing database")
	}

	mbClient, err := musicbrainz.NewClient(musicbrainz.ClientConfig{
		BaseURL:         viper.GetString("musicbrainz.base_url"),
		UserAgent:       viper.GetString("musicbrainz.user_agent"),
		RequestInterval: msDuration("musicbrainz.request_interval_ms"),
		MaxAttempts:     viper.GetInt("musicbrainz.max_attempts"),
		BackoffBase:     msDuration("musicbrainz.backoff_base_ms"),
		BackoffCap:      msDuration("musicbrainz.backoff_cap_ms"),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating musicbrainz client")
	}

	resolver := musicbrainz.NewResolver(mbClient, logger)
	covers := coverart.NewClient(viper.GetString("musicbrainz.user_agent"), logger).
		WithBaseURL(viper.GetString("coverart.base_url"))

	oauthConf := &oauth2.Config{
		ClientID:     viper.GetString("spotify.client_id"),
		ClientSecret: viper.GetString("spotify.client_secret"),
		RedirectURL:  viper.GetString("callback.spotify"),
		Scopes:       strings.Fields(viper.GetString("spotify.scopes")),
		Endpoint:     spotifyauth.Endpoint,
	}

	spotifyClient := spotify.NewClient(logger)
	tokens := spotify.NewTokenManager(database, oauthConf,
		time.Duration(viper.GetInt("spotify.token_safety_margin_seconds"))*time.Second, logger)
	sessions := session.NewManager(viper.GetString("jwt.secret"), session.DefaultTTL, logger)

	ingestor := playback.NewIngestor(database, resolver, logger)

	engineCfg := playback.Config{
		MinPlaySeconds:       viper.GetInt64("tracker.min_play_seconds"),
		MinPlayPercent:       viper.GetInt64("tracker.min_play_percent"),
		WrapMinToleranceMs:   viper.GetInt64("tracker.wrap_min_tolerance_ms"),
		WrapThresholdPercent: viper.GetInt64("tracker.wrap_threshold_percent"),
		MaxDeltaMs:           viper.GetInt64("tracker.max_delta_ms"),
		StaleSessionMs:       viper.GetInt64("tracker.stale_session_ms"),
		SkipThresholdPercent: viper.GetInt64("tracker.skip_threshold_percent"),
		EndMarginMs:          viper.GetInt64("tracker.end_margin_ms"),
		DedupeWindow:         5 * time.Second,
	}

	reconcilerCfg := playback.ReconcilerConfig{
		MinPlaySeconds:       viper.GetInt64("tracker.min_play_seconds"),
		MinPlayPercent:       viper.GetInt64("tracker.min_play_percent"),
		SkipThresholdPercent: viper.GetInt64("tracker.skip_threshold_percent"),
		DedupeWindow:         10 * time.Minute,
	}

	hostname, _ := os.Hostname()
	workerCfg := enrich.Config{
		WorkerID:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		BatchSize:    viper.GetInt("enrichment.batch_size"),
		LeaseTimeout: msDuration("enrichment.lease_timeout_ms"),
		Retry: db.RetryPolicy{
			Base:       msDuration("enrichment.retry_base_ms"),
			Multiplier: viper.GetInt("enrichment.retry_multiplier"),
			Cap:        msDuration("enrichment.retry_cap_ms"),
		},
		JobDelay: msDuration("enrichment.job_delay_ms"),
		IdlePoll: msDuration("enrichment.poll_interval_ms"),
	}

	app := &application{
		logger:     logger,
		database:   database,
		sessions:   sessions,
		oauth:      oauth.NewService(database, oauthConf, spotifyClient, sessions, logger),
		spotify:    spotifyClient,
		tokens:     tokens,
		engine:     playback.NewEngine(database, ingestor, engineCfg, logger),
		reconciler: playback.NewReconciler(database, spotifyClient, tokens, ingestor, reconcilerCfg, logger),
		worker:     enrich.NewWorker(database, resolver, covers, workerCfg, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.runFastLoop(ctx, msDuration("tracker.poll_interval_ms"))
	})
	g.Go(func() error {
		return app.runSlowLoop(ctx, msDuration("tracker.recently_played_interval_ms"))
	})
	g.Go(func() error {
		return app.worker.Run(ctx)
	})
	g.Go(func() error {
		return app.runReaper(ctx,
			msDuration("enrichment.reap_interval_ms"),
			msDuration("enrichment.reap_ttl_ms"))
	})
	g.Go(func() error {
		return app.serveHTTP(ctx, viper.GetString("server.host")+":"+viper.GetString("server.port"))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("shutting down")
	}
	logger.Info().Msg("shutdown complete")
}

// runFastLoop polls currently-playing for every linked account. One
// account's failure never stalls the others.
func (app *application) runFastLoop(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(interval)):
		}

		accounts, err := app.database.ListAccounts(provider)
		if err != nil {
			app.logger.Error().Err(err).Msg("listing accounts")
			continue
		}

		for _, acct := range accounts {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			token, err := app.tokens.GetValidAccessToken(ctx, acct)
			if err != nil {
				app.logger.Warn().Err(err).Str("account", acct.ID).Msg("skipping account this cycle")
				continue
			}

			np, err := app.spotify.GetCurrentlyPlaying(ctx, token)
			if err != nil {
				app.logger.Warn().Err(err).Str("account", acct.ID).Msg("currently-playing poll failed")
				continue
			}

			if err := app.engine.Observe(ctx, acct.UserID, provider, *np); err != nil {
				app.logger.Error().Err(err).Str("account", acct.ID).Msg("session update failed")
			}
		}
	}
}

// runSlowLoop replays recently-played history for every linked account.
func (app *application) runSlowLoop(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(interval)):
		}

		accounts, err := app.database.ListAccounts(provider)
		if err != nil {
			app.logger.Error().Err(err).Msg("listing accounts")
			continue
		}

		for _, acct := range accounts {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := app.reconciler.Reconcile(ctx, acct); err != nil {
				app.logger.Warn().Err(err).Str("account", acct.ID).Msg("reconcile failed")
			}
		}
	}
}

// runReaper deletes terminal jobs past their retention.
func (app *application) runReaper(ctx context.Context, interval, ttl time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		n, err := app.database.ReapJobs(ttl)
		if err != nil {
			app.logger.Error().Err(err).Msg("reaping jobs")
			continue
		}
		if n > 0 {
			app.logger.Info().Int64("reaped", n).Msg("reaped terminal jobs")
		}
	}
}

func (app *application) serveHTTP(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// msDuration reads a millisecond-valued config key as a Duration.
func msDuration(key string) time.Duration {
	return time.Duration(viper.GetInt64(key)) * time.Millisecond
}

// jitter spreads an interval by ±10% so the loops drift apart.
func jitter(d time.Duration) time.Duration {
	f := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * f)
}
