package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(app.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", app.handleHealthz)

	r.Get("/login/spotify", app.oauth.HandleLogin)
	r.Get("/callback/spotify", app.oauth.HandleCallback)

	authed := alice.New(app.sessions.WithAuth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/me", authed.ThenFunc(app.handleMe))
		r.Method(http.MethodGet, "/currently-playing", authed.ThenFunc(app.handleCurrentlyPlaying))
		r.Method(http.MethodGet, "/recently-played", authed.ThenFunc(app.handleRecentlyPlayed))
		r.Method(http.MethodGet, "/stats/top-groups", authed.ThenFunc(app.handleTopGroups))
		r.Method(http.MethodGet, "/stats/top-solo-artists", authed.ThenFunc(app.handleTopSoloArtists))
		r.Method(http.MethodGet, "/artists/{id}", authed.ThenFunc(app.handleArtist))
		r.Method(http.MethodGet, "/jobs", authed.ThenFunc(app.handleQueueStats))
		r.Method(http.MethodGet, "/jobs/{id}", authed.ThenFunc(app.handleJob))
		r.Method(http.MethodPost, "/enrichment/sync", authed.ThenFunc(app.handleSync))
	})

	return r
}

// requestLogger logs one line per request in the service's structured
// format instead of chi's default text logger.
func (app *application) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		app.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
