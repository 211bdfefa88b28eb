package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chorus-fm/chorus/models"
)

// MinSearchScore is the relevance floor below which a search result is
// treated as no match.
const MinSearchScore = 80

// Resolver answers the metadata questions the ingestion paths and the
// enrichment worker ask. All calls go through the shared rate-limited
// client; per-cycle memoization lives in Cache.
type Resolver struct {
	client  *Client
	cleaner *MetadataCleaner
	logger  zerolog.Logger
}

func NewResolver(client *Client, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client:  client,
		cleaner: NewMetadataCleaner(),
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// ResolveISRC maps an ISRC to a recording id, or nil when unknown.
func (r *Resolver) ResolveISRC(ctx context.Context, cache *Cache, isrc string) (*string, error) {
	if cached, ok := cache.isrc[isrc]; ok {
		return cached, nil
	}

	var resp isrcResponse
	err := r.client.GetJSON(ctx, "/isrc/"+url.PathEscape(isrc)+"?fmt=json", &resp)
	if errors.Is(err, ErrNotFound) {
		cache.isrc[isrc] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rid *string
	if len(resp.Recordings) > 0 {
		id := resp.Recordings[0].ID
		rid = &id
	}
	cache.isrc[isrc] = rid
	return rid, nil
}

// SearchRecording maps (title, artist, album) to a recording id. A match
// below MinSearchScore resolves to nil, explicitly logged.
func (r *Resolver) SearchRecording(ctx context.Context, cache *Cache, title, artist, album string) (*string, error) {
	title, _ = r.cleaner.CleanRecording(title)
	artist, _ = r.cleaner.CleanArtist(artist)

	key := strings.ToLower(title + "|" + artist + "|" + album)
	if cached, ok := cache.search[key]; ok {
		return cached, nil
	}

	var parts []string
	if title != "" {
		parts = append(parts, fmt.Sprintf(`recording:"%s"`, EscapeLucene(title)))
	}
	if artist != "" {
		parts = append(parts, fmt.Sprintf(`artist:"%s"`, EscapeLucene(artist)))
	}
	if album != "" {
		parts = append(parts, fmt.Sprintf(`release:"%s"`, EscapeLucene(album)))
	}
	if len(parts) == 0 {
		return nil, errors.New("search needs at least one of title, artist, album")
	}
	query := strings.Join(parts, " AND ")

	var resp recordingSearchResponse
	err := r.client.GetJSON(ctx, "/recording?query="+url.QueryEscape(query)+"&limit=5&fmt=json", &resp)
	if errors.Is(err, ErrNotFound) || (err == nil && len(resp.Recordings) == 0) {
		cache.search[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	best := resp.Recordings[0]
	if best.Score < MinSearchScore {
		r.logger.Info().
			Str("title", title).
			Str("artist", artist).
			Int("score", best.Score).
			Msg("search match below confidence floor, treating as no match")
		cache.search[key] = nil
		return nil, nil
	}

	id := best.ID
	cache.search[key] = &id
	return &id, nil
}

// GetRecording fetches full recording details, or nil when unknown.
func (r *Resolver) GetRecording(ctx context.Context, cache *Cache, rid string) (*Recording, error) {
	if cached, ok := cache.recording[rid]; ok {
		return cached, nil
	}

	var rec Recording
	err := r.client.GetJSON(ctx, "/recording/"+url.PathEscape(rid)+"?inc=artist-credits+releases+isrcs&fmt=json", &rec)
	if errors.Is(err, ErrNotFound) {
		cache.recording[rid] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cache.recording[rid] = &rec
	return &rec, nil
}

// GetArtist fetches artist details including membership relations.
func (r *Resolver) GetArtist(ctx context.Context, cache *Cache, mbid string) (*Artist, error) {
	if cached, ok := cache.artist[mbid]; ok {
		return cached, nil
	}

	var artist Artist
	err := r.client.GetJSON(ctx, "/artist/"+url.PathEscape(mbid)+"?inc=artist-rels&fmt=json", &artist)
	if errors.Is(err, ErrNotFound) {
		cache.artist[mbid] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cache.artist[mbid] = &artist
	return &artist, nil
}

// SearchArtist maps a name to an artist mbid with the same confidence
// floor as recording search.
func (r *Resolver) SearchArtist(ctx context.Context, name string) (*string, error) {
	query := fmt.Sprintf(`artist:"%s"`, EscapeLucene(name))

	var resp artistSearchResponse
	err := r.client.GetJSON(ctx, "/artist?query="+url.QueryEscape(query)+"&limit=5&fmt=json", &resp)
	if errors.Is(err, ErrNotFound) || (err == nil && len(resp.Artists) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	best := resp.Artists[0]
	if best.Score < MinSearchScore {
		r.logger.Info().Str("artist", name).Int("score", best.Score).Msg("artist search below confidence floor")
		return nil, nil
	}
	return &best.ID, nil
}

// SearchRelease maps (title, artist name) to a release mbid.
func (r *Resolver) SearchRelease(ctx context.Context, title, artistName string) (*string, error) {
	query := fmt.Sprintf(`release:"%s" AND artist:"%s"`, EscapeLucene(title), EscapeLucene(artistName))

	var resp releaseSearchResponse
	err := r.client.GetJSON(ctx, "/release?query="+url.QueryEscape(query)+"&limit=5&fmt=json", &resp)
	if errors.Is(err, ErrNotFound) || (err == nil && len(resp.Releases) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	best := resp.Releases[0]
	if best.Score < MinSearchScore {
		r.logger.Info().Str("release", title).Int("score", best.Score).Msg("release search below confidence floor")
		return nil, nil
	}
	return &best.ID, nil
}

// GetRelease fetches release details, or nil when unknown.
func (r *Resolver) GetRelease(ctx context.Context, mbid string) (*Release, error) {
	var rel Release
	err := r.client.GetJSON(ctx, "/release/"+url.PathEscape(mbid)+"?fmt=json", &rel)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// HydrateTrack resolves a provider snapshot against MusicBrainz:
// ISRC lookup first, then search. When a recording is found its credits,
// ISRC, duration and best release enrich the returned metadata;
// otherwise the snapshot's own fields carry through with nil external
// ids.
func (r *Resolver) HydrateTrack(ctx context.Context, cache *Cache, snap models.TrackSnapshot) (models.TrackMetadata, error) {
	meta := snapshotMetadata(snap)

	var rid *string
	var err error

	if snap.ISRC != nil && *snap.ISRC != "" {
		rid, err = r.ResolveISRC(ctx, cache, *snap.ISRC)
		if err != nil {
			return meta, err
		}
	}

	if rid == nil {
		artistNames := make([]string, 0, len(snap.Artists))
		for _, a := range snap.Artists {
			artistNames = append(artistNames, a.Name)
		}
		rid, err = r.SearchRecording(ctx, cache, snap.Title, strings.Join(artistNames, ", "), snap.AlbumTitle)
		if err != nil {
			return meta, err
		}
	}

	if rid == nil {
		return meta, nil
	}

	rec, err := r.GetRecording(ctx, cache, *rid)
	if err != nil || rec == nil {
		return meta, err
	}

	meta.RecordingMBID = &rec.ID
	if meta.ISRC == nil && len(rec.ISRCs) > 0 {
		meta.ISRC = &rec.ISRCs[0]
	}
	if meta.DurationMs == nil && rec.Length > 0 {
		length := rec.Length
		meta.DurationMs = &length
	}

	if len(rec.ArtistCredit) > 0 {
		credits := make([]models.ArtistCredit, 0, len(rec.ArtistCredit))
		for i, ac := range rec.ArtistCredit {
			mbid := ac.Artist.ID
			credits = append(credits, models.ArtistCredit{
				Name:       ac.Artist.Name,
				MBID:       &mbid,
				IsPrimary:  i == 0,
				JoinPhrase: ac.Joinphrase,
			})
		}
		meta.Artists = credits
	}

	if best := bestRelease(rec.Releases, rec.Title, snap.AlbumTitle); best != nil {
		meta.AlbumTitle = best.Title
		meta.AlbumMBID = &best.ID
		if best.Date != "" {
			date := best.Date
			meta.AlbumDate = &date
		}
	}

	return meta, nil
}

func snapshotMetadata(snap models.TrackSnapshot) models.TrackMetadata {
	var duration *int64
	if snap.DurationMs > 0 {
		d := snap.DurationMs
		duration = &d
	}
	return models.TrackMetadata{
		Title:      snap.Title,
		Artists:    snap.Artists,
		AlbumTitle: snap.AlbumTitle,
		ISRC:       snap.ISRC,
		DurationMs: duration,
		Explicit:   snap.Explicit,
	}
}

// bestRelease picks the release the album upsert should use: oldest
// official release matching the expected album title when possible,
// falling back through official releases to anything that is not just a
// single named after the track.
func bestRelease(releases []Release, trackTitle, expectedAlbum string) *Release {
	if len(releases) == 0 {
		return nil
	}
	if len(releases) == 1 {
		r := releases[0]
		return &r
	}

	sorted := make([]Release, len(releases))
	copy(sorted, releases)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		validA, validB := len(a.Date) >= 4, len(b.Date) >= 4
		if validA != validB {
			return validA
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})

	expected := strings.ToLower(strings.TrimSpace(expectedAlbum))
	if expected != "" {
		for i := range sorted {
			title := strings.ToLower(strings.TrimSpace(sorted[i].Title))
			if (title == expected || strings.HasPrefix(title, expected)) && isOfficial(&sorted[i]) {
				return &sorted[i]
			}
		}
	}

	for i := range sorted {
		if sorted[i].Title != trackTitle && isOfficial(&sorted[i]) {
			return &sorted[i]
		}
	}
	for i := range sorted {
		if sorted[i].Title != trackTitle {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

func isOfficial(r *Release) bool {
	return r.Status == "" || r.Status == "Official"
}
