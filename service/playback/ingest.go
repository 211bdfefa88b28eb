package playback

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chorus-fm/chorus/db"
	"github.com/chorus-fm/chorus/models"
	"github.com/chorus-fm/chorus/service/musicbrainz"
)

// MetadataResolver is the slice of the resolver the ingestion paths
// need. Satisfied by *musicbrainz.Resolver.
type MetadataResolver interface {
	HydrateTrack(ctx context.Context, cache *musicbrainz.Cache, snap models.TrackSnapshot) (models.TrackMetadata, error)
}

// Ingestor turns a provider track snapshot into canonical catalog rows.
// Both ingestion loops share it: resolve against MusicBrainz, upsert the
// track with its credits and album, and queue enrichment for whatever
// could not be resolved inline.
type Ingestor struct {
	db       *db.DB
	resolver MetadataResolver
	logger   zerolog.Logger
}

func NewIngestor(database *db.DB, resolver MetadataResolver, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		db:       database,
		resolver: resolver,
		logger:   logger.With().Str("component", "ingestor").Logger(),
	}
}

// Persist resolves and stores the snapshot's track, credits and album.
// Resolution failures degrade to the snapshot's own metadata; the play
// still lands, enrichment catches up later.
func (in *Ingestor) Persist(ctx context.Context, cache *musicbrainz.Cache, snap models.TrackSnapshot) (*models.Track, *string, error) {
	meta, err := in.resolver.HydrateTrack(ctx, cache, snap)
	if err != nil {
		in.logger.Warn().Err(err).Str("title", snap.Title).Msg("metadata resolution failed, storing snapshot as-is")
	}

	track, err := in.db.UpsertTrack(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("upserting track %q: %w", meta.Title, err)
	}

	if err := in.db.LinkTrackArtists(track.ID, meta.Artists); err != nil {
		return nil, nil, err
	}

	var albumID *string
	if meta.AlbumTitle != "" {
		primary, err := in.db.GetPrimaryArtist(track.ID)
		if err != nil {
			return nil, nil, err
		}
		if primary != nil {
			album, err := in.db.UpsertAlbum(meta.AlbumTitle, primary.ID, meta.AlbumMBID, meta.AlbumDate, meta.AlbumImageURL)
			if err != nil {
				return nil, nil, fmt.Errorf("upserting album %q: %w", meta.AlbumTitle, err)
			}
			if err := in.db.LinkTrackAlbum(track.ID, album.ID, nil, nil); err != nil {
				return nil, nil, err
			}
			albumID = &album.ID
			if album.MBID == nil {
				_, _ = in.db.EnqueueJob(models.JobAlbumResolveMBID, models.EntityAlbum, album.ID, 0)
			}
		}
	}

	if track.MBID == nil {
		_, _ = in.db.EnqueueJob(models.JobTrackResolveMBID, models.EntityTrack, track.ID, 0)
	}
	for _, credit := range meta.Artists {
		if credit.MBID == nil || *credit.MBID == "" {
			artist, err := in.db.GetArtistByName(credit.Name)
			if err == nil && artist != nil && artist.MBID == nil {
				_, _ = in.db.EnqueueJob(models.JobArtistResolveMBID, models.EntityArtist, artist.ID, 0)
			}
		}
	}

	return track, albumID, nil
}

// EnsureLinks re-applies the credit and album links for an already
// recorded play. The reconciler calls this on the dedupe path so a play
// observed twice still ends up fully linked.
func (in *Ingestor) EnsureLinks(trackID string, meta models.TrackMetadata, albumID *string) error {
	if err := in.db.LinkTrackArtists(trackID, meta.Artists); err != nil {
		return err
	}
	if albumID != nil {
		return in.db.LinkTrackAlbum(trackID, *albumID, nil, nil)
	}
	return nil
}
