package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/service/musicbrainz"
	"github.com/chorus-fm/chorus/service/spotify"
)

// SourcePlayer marks scrobbles emitted by the currently-playing poller.
const SourcePlayer = "player"

// Config holds the session engine's knobs. Durations in milliseconds to
// match the wire and the stored session row.
type Config struct {
	MinPlaySeconds       int64
	MinPlayPercent       int64
	WrapMinToleranceMs   int64
	WrapThresholdPercent int64
	MaxDeltaMs           int64
	StaleSessionMs       int64
	SkipThresholdPercent int64
	EndMarginMs          int64
	DedupeWindow         time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinPlaySeconds:       30,
		MinPlayPercent:       50,
		WrapMinToleranceMs:   15_000,
		WrapThresholdPercent: 35,
		MaxDeltaMs:           30_000,
		StaleSessionMs:       1_800_000,
		SkipThresholdPercent: 90,
		EndMarginMs:          15_000,
		DedupeWindow:         5 * time.Second,
	}
}

// Engine drives one playback session row per (user, provider) from
// currently-playing polls. It accumulates listened time across polls and
// emits a scrobble when the session ends having crossed the threshold.
type Engine struct {
	db       *db.DB
	ingestor *Ingestor
	cfg      Config
	logger   zerolog.Logger

	now func() time.Time
}

func NewEngine(database *db.DB, ingestor *Ingestor, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		db:       database,
		ingestor: ingestor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
}

// Observe processes one poll result for a user and updates or finalizes
// the session row.
func (e *Engine) Observe(ctx context.Context, userID, provider string, np spotify.NowPlaying) error {
	session, err := e.db.GetPlaybackSession(userID, provider)
	if err != nil {
		return err
	}
	nowMs := e.now().UnixMilli()

	if np.State != spotify.StateTrack {
		if session == nil {
			return nil
		}
		if nowMs-session.LastSeenAt < e.cfg.StaleSessionMs {
			// The user may resume; hold the session.
			return nil
		}
		e.finalize(ctx, session)
		return e.db.DeletePlaybackSession(userID, provider)
	}

	if session == nil {
		return e.db.SavePlaybackSession(e.fresh(userID, provider, np, nowMs))
	}

	if session.TrackURI != np.URI {
		e.finalize(ctx, session)
		return e.db.SavePlaybackSession(e.fresh(userID, provider, np, nowMs))
	}

	return e.continueSession(ctx, session, np, nowMs)
}

func (e *Engine) fresh(userID, provider string, np spotify.NowPlaying, nowMs int64) *models.PlaybackSession {
	var duration int64
	if np.Track != nil {
		duration = np.Track.DurationMs
	}
	return &models.PlaybackSession{
		UserID:         userID,
		Provider:       provider,
		TrackURI:       np.URI,
		StartedAt:      nowMs,
		LastSeenAt:     nowMs,
		LastProgressMs: np.ProgressMs,
		AccumulatedMs:  0,
		IsPlaying:      np.IsPlaying,
		DurationMs:     duration,
		Snapshot:       np.Track,
	}
}

// continueSession applies a same-track poll: accumulate forward motion,
// detect wraps, absorb seeks.
func (e *Engine) continueSession(ctx context.Context, s *models.PlaybackSession, np spotify.NowPlaying, nowMs int64) error {
	delta := np.ProgressMs - s.LastProgressMs

	if s.IsPlaying {
		wrapThreshold := e.cfg.WrapMinToleranceMs
		if t := s.DurationMs * e.cfg.WrapThresholdPercent / 100; t > wrapThreshold {
			wrapThreshold = t
		}

		switch {
		case delta < -wrapThreshold:
			// Track restarted or is looping. Close out the first pass and
			// open a new session at the current position.
			e.finalize(ctx, s)
			fresh := e.fresh(s.UserID, s.Provider, np, nowMs)
			fresh.Snapshot = s.Snapshot
			return e.db.SavePlaybackSession(fresh)
		case delta > e.cfg.MaxDeltaMs:
			// Forward seek; credit at most one poll interval's worth.
			s.AccumulatedMs += e.cfg.MaxDeltaMs
		case delta > 0:
			s.AccumulatedMs += delta
		default:
			// Small regression or no motion; position updates below.
		}
	}

	s.LastSeenAt = nowMs
	s.LastProgressMs = np.ProgressMs
	s.IsPlaying = np.IsPlaying
	return e.db.SavePlaybackSession(s)
}

// meetsThreshold is the disjunctive eligibility rule: an absolute floor
// for normal tracks, a fractional one so very short tracks can still
// qualify.
func (e *Engine) meetsThreshold(accumulatedMs, durationMs int64) bool {
	if accumulatedMs >= e.cfg.MinPlaySeconds*1000 {
		return true
	}
	return durationMs > 0 && accumulatedMs*100 >= durationMs*e.cfg.MinPlayPercent
}

// finalize emits a scrobble for the session if it qualifies. Failures are
// logged, never propagated: a finalization that cannot write loses one
// play, which the reconciler recovers later.
func (e *Engine) finalize(ctx context.Context, s *models.PlaybackSession) {
	if s.Scrobbled {
		return
	}
	if s.Snapshot == nil {
		e.logger.Warn().Str("user", s.UserID).Str("uri", s.TrackURI).Msg("session has no metadata snapshot, dropping")
		return
	}

	duration := s.DurationMs
	if duration == 0 {
		duration = s.Snapshot.DurationMs
	}

	if !e.meetsThreshold(s.AccumulatedMs, duration) {
		return
	}

	effective := s.AccumulatedMs
	if duration > 0 && s.AccumulatedMs+e.cfg.EndMarginMs >= duration {
		effective = duration
	}
	skipped := duration > 0 && effective*100 < duration*e.cfg.SkipThresholdPercent

	dup, err := e.db.HasScrobbleNear(s.UserID, s.StartedAt, e.cfg.DedupeWindow)
	if err != nil {
		e.logger.Error().Err(err).Str("user", s.UserID).Msg("dedupe check failed")
		return
	}
	if dup {
		s.Scrobbled = true
		return
	}

	track, albumID, err := e.ingestor.Persist(ctx, musicbrainz.NewCache(), *s.Snapshot)
	if err != nil {
		e.logger.Error().Err(err).Str("title", s.Snapshot.Title).Msg("persisting play failed")
		return
	}

	err = e.db.InsertScrobble(&models.Scrobble{
		UserID:           s.UserID,
		TrackID:          track.ID,
		AlbumID:          albumID,
		PlayedAt:         s.StartedAt,
		PlayedDurationMs: effective,
		Skipped:          skipped,
		Source:           SourcePlayer,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("title", s.Snapshot.Title).Msg("inserting scrobble failed")
		return
	}

	s.Scrobbled = true
	e.logger.Info().
		Str("user", s.UserID).
		Str("title", s.Snapshot.Title).
		Int64("played_ms", effective).
		Bool("skipped", skipped).
		Msg("scrobbled")
}
