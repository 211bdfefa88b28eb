// Package enrich runs the background jobs that fill in what ingestion
// could not resolve inline: missing MBIDs, artist relationship graphs,
// album art and corrected track details.
package enrich

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/pkg/partialdate"
	"github.com/chorus-fm/chorus/service/coverart"
	"github.com/chorus-fm/chorus/service/musicbrainz"
)

type Config struct {
	WorkerID     string
	BatchSize    int
	LeaseTimeout time.Duration
	Retry        db.RetryPolicy
	JobDelay     time.Duration
	IdlePoll     time.Duration
}

func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:     workerID,
		BatchSize:    10,
		LeaseTimeout: 30 * time.Minute,
		Retry:        db.RetryPolicy{Base: time.Minute, Multiplier: 2, Cap: time.Hour},
		JobDelay:     3 * time.Second,
		IdlePoll:     30 * time.Second,
	}
}

// Worker claims enrichment jobs in batches and dispatches them by kind.
// Several workers may run against the same queue; the claim statement and
// the active-job constraint keep them from stepping on each other.
type Worker struct {
	db       *db.DB
	resolver *musicbrainz.Resolver
	covers   *coverart.Client
	cfg      Config
	logger   zerolog.Logger
}

func NewWorker(database *db.DB, resolver *musicbrainz.Resolver, covers *coverart.Client, cfg Config, logger zerolog.Logger) *Worker {
	return &Worker{
		db:       database,
		resolver: resolver,
		covers:   covers,
		cfg:      cfg,
		logger:   logger.With().Str("component", "enrich").Str("worker", cfg.WorkerID).Logger(),
	}
}

// Run processes jobs until the context is cancelled. Between jobs the
// worker sleeps briefly so the shared upstream budget is never saturated
// by enrichment alone; an empty queue backs off to the idle interval.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.RunCycle(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("cycle failed")
		}

		wait := w.cfg.IdlePoll
		if processed > 0 {
			wait = w.cfg.JobDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(wait)):
		}
	}
}

// RunCycle claims one batch and works through it, pacing between jobs.
// Returns how many jobs were processed.
func (w *Worker) RunCycle(ctx context.Context) (int, error) {
	jobs, err := w.db.ClaimJobs(w.cfg.WorkerID, w.cfg.BatchSize, w.cfg.LeaseTimeout)
	if err != nil {
		return 0, fmt.Errorf("claiming jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	cache := musicbrainz.NewCache()
	for i, job := range jobs {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}

		if err := w.Process(ctx, cache, job); err != nil {
			w.logger.Warn().Err(err).Str("job", job.ID).Str("kind", job.Kind).Int("attempts", job.Attempts+1).Msg("job failed")
			if failErr := w.db.FailJob(job, err.Error(), w.cfg.Retry); failErr != nil {
				w.logger.Error().Err(failErr).Str("job", job.ID).Msg("recording failure failed")
			}
		} else {
			if compErr := w.db.CompleteJob(job); compErr != nil {
				w.logger.Error().Err(compErr).Str("job", job.ID).Msg("completing job failed")
			}
		}

		if i < len(jobs)-1 {
			select {
			case <-ctx.Done():
				return i + 1, ctx.Err()
			case <-time.After(jitter(w.cfg.JobDelay)):
			}
		}
	}
	return len(jobs), nil
}

// Process runs one job to completion or error.
func (w *Worker) Process(ctx context.Context, cache *musicbrainz.Cache, job *models.EnrichmentJob) error {
	switch job.Kind {
	case models.JobArtistResolveMBID:
		return w.resolveArtistMBID(ctx, job.EntityID)
	case models.JobArtistSyncRelations:
		return w.syncArtistRelations(ctx, cache, job.EntityID)
	case models.JobAlbumResolveMBID:
		return w.resolveAlbumMBID(ctx, job.EntityID)
	case models.JobAlbumSync:
		return w.syncAlbum(ctx, cache, job.EntityID)
	case models.JobTrackResolveMBID:
		return w.resolveTrackMBID(ctx, cache, job.EntityID)
	case models.JobTrackSync:
		return w.syncTrack(ctx, cache, job.EntityID)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) resolveArtistMBID(ctx context.Context, artistID string) error {
	artist, err := w.db.GetArtistByID(artistID)
	if err != nil {
		return err
	}
	if artist == nil {
		return fmt.Errorf("artist %s not found", artistID)
	}
	if artist.MBID != nil {
		return nil
	}

	mbid, err := w.resolver.SearchArtist(ctx, artist.Name)
	if err != nil {
		return err
	}
	if mbid == nil {
		return fmt.Errorf("no match for artist %q", artist.Name)
	}

	if err := w.db.SetArtistMBID(artist.ID, *mbid); err != nil {
		return err
	}
	_, err = w.db.EnqueueJob(models.JobArtistSyncRelations, models.EntityArtist, artist.ID, 0)
	return err
}

func (w *Worker) syncArtistRelations(ctx context.Context, cache *musicbrainz.Cache, artistID string) error {
	artist, err := w.db.GetArtistByID(artistID)
	if err != nil {
		return err
	}
	if artist == nil {
		return fmt.Errorf("artist %s not found", artistID)
	}
	if artist.MBID == nil {
		return fmt.Errorf("artist %s has no mbid to sync from", artistID)
	}

	details, err := w.resolver.GetArtist(ctx, cache, *artist.MBID)
	if err != nil {
		return err
	}
	if details == nil {
		return fmt.Errorf("artist %s not found upstream", *artist.MBID)
	}

	if err := w.applyArtistDetails(artist, details); err != nil {
		return err
	}

	isGroup := strings.EqualFold(details.Type, "Group")
	for _, rel := range details.Relations {
		if rel.Type != "member of band" || rel.Artist == nil {
			continue
		}

		counterpart, err := w.db.UpsertArtist(rel.Artist.Name, &rel.Artist.ID)
		if err != nil {
			return err
		}

		memberID, groupID := artist.ID, counterpart.ID
		if isGroup {
			memberID, groupID = counterpart.ID, artist.ID
		}

		if err := w.upsertMembership(memberID, groupID, rel.Begin, rel.End, rel.Ended); err != nil {
			return err
		}
	}
	return nil
}

// applyArtistDetails merges fetched artist fields into the stored row.
func (w *Worker) applyArtistDetails(artist *models.Artist, details *musicbrainz.Artist) error {
	if details.Type != "" {
		t := strings.ToLower(details.Type)
		artist.Type = &t
	}
	if details.Gender != "" {
		g := strings.ToLower(details.Gender)
		artist.Gender = &g
	}
	if details.LifeSpan != nil {
		if err := applyLifespanDate(details.LifeSpan.Begin, &artist.BeginDateRaw, &artist.BeginDate); err != nil {
			return err
		}
		if err := applyLifespanDate(details.LifeSpan.End, &artist.EndDateRaw, &artist.EndDate); err != nil {
			return err
		}
	}
	return w.db.UpdateArtistDetails(artist)
}

func applyLifespanDate(raw string, rawField, normField **string) error {
	if raw == "" {
		return nil
	}
	if !partialdate.Valid(raw) {
		return fmt.Errorf("invalid lifespan date %q", raw)
	}
	current := ""
	if *rawField != nil {
		current = **rawField
	}
	if current != "" && !partialdate.Refines(raw, current) {
		return nil
	}
	norm, err := partialdate.Normalize(raw)
	if err != nil {
		return err
	}
	r := raw
	*rawField = &r
	*normField = &norm
	return nil
}

func (w *Worker) resolveAlbumMBID(ctx context.Context, albumID string) error {
	album, err := w.db.GetAlbumByID(albumID)
	if err != nil {
		return err
	}
	if album == nil {
		return fmt.Errorf("album %s not found", albumID)
	}
	if album.MBID != nil {
		return nil
	}

	artist, err := w.db.GetArtistByID(album.ArtistID)
	if err != nil {
		return err
	}
	artistName := ""
	if artist != nil {
		artistName = artist.Name
	}

	mbid, err := w.resolver.SearchRelease(ctx, album.Title, artistName)
	if err != nil {
		return err
	}
	if mbid == nil {
		return fmt.Errorf("no match for album %q by %q", album.Title, artistName)
	}

	if err := w.db.SetAlbumMBID(album.ID, *mbid); err != nil {
		return err
	}
	_, err = w.db.EnqueueJob(models.JobAlbumSync, models.EntityAlbum, album.ID, 0)
	return err
}

func (w *Worker) syncAlbum(ctx context.Context, cache *musicbrainz.Cache, albumID string) error {
	album, err := w.db.GetAlbumByID(albumID)
	if err != nil {
		return err
	}
	if album == nil {
		return fmt.Errorf("album %s not found", albumID)
	}
	if album.MBID == nil {
		return fmt.Errorf("album %s has no mbid to sync from", albumID)
	}

	release, err := w.resolver.GetRelease(ctx, *album.MBID)
	if err != nil {
		return err
	}
	if release == nil {
		return fmt.Errorf("release %s not found upstream", *album.MBID)
	}

	if release.Title != "" {
		album.Title = release.Title
	}
	if release.Date != "" {
		if album.ReleaseDate == nil || partialdate.Refines(release.Date, *album.ReleaseDate) {
			d := release.Date
			album.ReleaseDate = &d
		}
	}

	if album.ImageURL == nil {
		url, err := cache.CoverURL(*album.MBID, func() (*string, error) {
			return w.covers.FrontCoverURL(ctx, *album.MBID), nil
		})
		if err == nil && url != nil {
			album.ImageURL = url
		}
	}

	return w.db.UpdateAlbumDetails(album)
}

func (w *Worker) resolveTrackMBID(ctx context.Context, cache *musicbrainz.Cache, trackID string) error {
	track, err := w.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("track %s not found", trackID)
	}
	if track.MBID != nil {
		return nil
	}

	var rid *string
	if track.ISRC != nil && *track.ISRC != "" {
		rid, err = w.resolver.ResolveISRC(ctx, cache, *track.ISRC)
		if err != nil {
			return err
		}
	}
	if rid == nil {
		artist, err := w.db.GetPrimaryArtist(track.ID)
		if err != nil {
			return err
		}
		artistName := ""
		if artist != nil {
			artistName = artist.Name
		}
		rid, err = w.resolver.SearchRecording(ctx, cache, track.Title, artistName, "")
		if err != nil {
			return err
		}
	}
	if rid == nil {
		return fmt.Errorf("no match for track %q", track.Title)
	}

	if err := w.db.SetTrackMBID(track.ID, *rid); err != nil {
		return err
	}
	_, err = w.db.EnqueueJob(models.JobTrackSync, models.EntityTrack, track.ID, 0)
	return err
}

func (w *Worker) syncTrack(ctx context.Context, cache *musicbrainz.Cache, trackID string) error {
	track, err := w.db.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("track %s not found", trackID)
	}
	if track.MBID == nil {
		return fmt.Errorf("track %s has no mbid to sync from", trackID)
	}

	rec, err := w.resolver.GetRecording(ctx, cache, *track.MBID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("recording %s not found upstream", *track.MBID)
	}

	if rec.Title != "" {
		track.Title = rec.Title
	}
	if track.DurationMs == nil && rec.Length > 0 {
		length := rec.Length
		track.DurationMs = &length
	}
	if track.ISRC == nil && len(rec.ISRCs) > 0 {
		track.ISRC = &rec.ISRCs[0]
	}

	return w.db.UpdateTrackDetails(track)
}

// jitter spreads a wait by ±10% so multiple loops drift apart instead of
// thundering together.
func jitter(d time.Duration) time.Duration {
	f := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * f)
}
