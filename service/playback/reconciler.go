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

// SourceHistory marks scrobbles emitted by the recently-played loop.
const SourceHistory = "history"

// ReconcilerConfig mirrors the engine's threshold knobs plus the wide
// cross-path dedupe window.
type ReconcilerConfig struct {
	MinPlaySeconds       int64
	MinPlayPercent       int64
	SkipThresholdPercent int64
	DedupeWindow         time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		MinPlaySeconds:       30,
		MinPlayPercent:       50,
		SkipThresholdPercent: 90,
		DedupeWindow:         10 * time.Minute,
	}
}

// Reconciler is the safety net behind the session engine: it replays the
// provider's recently-played history past a per-account cursor, catching
// plays the fast loop missed while the process was down or the listener
// was offline.
type Reconciler struct {
	db       *db.DB
	client   *spotify.Client
	tokens   *spotify.TokenManager
	ingestor *Ingestor
	cfg      ReconcilerConfig
	logger   zerolog.Logger
}

func NewReconciler(database *db.DB, client *spotify.Client, tokens *spotify.TokenManager, ingestor *Ingestor, cfg ReconcilerConfig, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		db:       database,
		client:   client,
		tokens:   tokens,
		ingestor: ingestor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile runs one cycle for an account: fetch history past the cursor
// and fold it in.
func (r *Reconciler) Reconcile(ctx context.Context, acct *models.Account) error {
	token, err := r.tokens.GetValidAccessToken(ctx, acct)
	if err != nil {
		return err
	}

	cursor, err := r.db.GetCursor(acct.UserID, acct.Provider)
	if err != nil {
		return err
	}

	plays, err := r.client.GetRecentlyPlayed(ctx, token, cursor, spotify.RecentlyPlayedMax)
	if err != nil {
		return err
	}

	return r.ProcessPlays(ctx, acct.UserID, acct.Provider, plays)
}

// ProcessPlays folds a batch of history items into scrobbles. The batch
// is processed oldest first; the cursor advances to the newest played_at
// observed even when items fall below the threshold, so a short play is
// never re-examined.
func (r *Reconciler) ProcessPlays(ctx context.Context, userID, provider string, plays []spotify.PlayedItem) error {
	if len(plays) == 0 {
		return nil
	}

	spotify.SortPlaysAscending(plays)
	cache := musicbrainz.NewCache()
	maxPlayedAt := int64(0)

	for i, play := range plays {
		if play.PlayedAt > maxPlayedAt {
			maxPlayedAt = play.PlayedAt
		}

		estimated := r.estimateDuration(plays, i)
		if !r.meetsThreshold(estimated, play.Track.DurationMs) {
			continue
		}

		if err := r.ingest(ctx, cache, userID, play, estimated); err != nil {
			r.logger.Error().Err(err).Str("title", play.Track.Title).Msg("reconciling play failed")
			// Leave the cursor behind this play so the next cycle retries.
			return r.db.AdvanceCursor(userID, provider, play.PlayedAt-1)
		}
	}

	return r.db.AdvanceCursor(userID, provider, maxPlayedAt)
}

// estimateDuration bounds how long play i can have lasted: no longer
// than the track, no longer than the gap to the next play. The newest
// item has no successor so the track duration stands.
func (r *Reconciler) estimateDuration(plays []spotify.PlayedItem, i int) int64 {
	duration := plays[i].Track.DurationMs
	if i+1 < len(plays) {
		gap := plays[i+1].PlayedAt - plays[i].PlayedAt
		if gap > 0 && (duration == 0 || gap < duration) {
			return gap
		}
	}
	return duration
}

func (r *Reconciler) meetsThreshold(estimatedMs, durationMs int64) bool {
	if estimatedMs >= r.cfg.MinPlaySeconds*1000 {
		return true
	}
	return durationMs > 0 && estimatedMs*100 >= durationMs*r.cfg.MinPlayPercent
}

func (r *Reconciler) ingest(ctx context.Context, cache *musicbrainz.Cache, userID string, play spotify.PlayedItem, estimatedMs int64) error {
	track, albumID, err := r.ingestor.Persist(ctx, cache, play.Track)
	if err != nil {
		return err
	}

	// The wide window absorbs the start-vs-end played_at disagreement
	// between the two ingestion paths. Links were just ensured by Persist,
	// so a duplicate costs nothing further.
	dup, err := r.db.HasScrobbleForTrackNear(userID, track.ID, play.PlayedAt, r.cfg.DedupeWindow)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	skipped := play.Track.DurationMs > 0 && estimatedMs*100 < play.Track.DurationMs*r.cfg.SkipThresholdPercent

	return r.db.InsertScrobble(&models.Scrobble{
		UserID:           userID,
		TrackID:          track.ID,
		AlbumID:          albumID,
		PlayedAt:         play.PlayedAt,
		PlayedDurationMs: estimatedMs,
		Skipped:          skipped,
		Source:           SourceHistory,
	})
}
