package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-fm/chorus/models"
)

// The canonical catalog: artists, albums and tracks are shared across
// users, created when first observed and never deleted. All upserts are
// idempotent; matching prefers external ids over natural keys.

// UpsertArtist matches by MBID when provided, else by exact name. When an
// existing row gains an MBID a relationships-sync job is enqueued
// fire-and-forget so the group graph catches up.
func (db *DB) UpsertArtist(name string, mbid *string) (*models.Artist, error) {
	if mbid != nil && *mbid != "" {
		artist, err := db.GetArtistByMBID(*mbid)
		if err != nil {
			return nil, err
		}
		if artist != nil {
			return artist, nil
		}
	}

	artist, err := db.GetArtistByName(name)
	if err != nil {
		return nil, err
	}

	if artist != nil {
		if artist.MBID == nil && mbid != nil && *mbid != "" {
			if err := db.SetArtistMBID(artist.ID, *mbid); err != nil {
				return nil, err
			}
			artist.MBID = mbid
			// Fire-and-forget: a duplicate active job is absorbed by the
			// partial-unique index.
			_, _ = db.EnqueueJob(models.JobArtistSyncRelations, models.EntityArtist, artist.ID, 0)
		}
		return artist, nil
	}

	artist = &models.Artist{
		ID:   uuid.NewString(),
		Name: name,
		MBID: mbid,
	}
	_, err = db.Exec(`
	INSERT INTO artists (id, name, mbid) VALUES (?, ?, ?)`,
		artist.ID, artist.Name, artist.MBID)
	if err != nil {
		return nil, err
	}

	if mbid != nil && *mbid != "" {
		_, _ = db.EnqueueJob(models.JobArtistSyncRelations, models.EntityArtist, artist.ID, 0)
	}

	return artist, nil
}

// UpsertAlbum matches by MBID, else by (title, primary artist). MBIDs are
// back-attached on later discovery.
func (db *DB) UpsertAlbum(title, artistID string, mbid, releaseDate, imageURL *string) (*models.Album, error) {
	if mbid != nil && *mbid != "" {
		album, err := db.GetAlbumByMBID(*mbid)
		if err != nil {
			return nil, err
		}
		if album != nil {
			return album, nil
		}
	}

	album, err := db.scanAlbum(db.QueryRow(albumSelect+` WHERE artist_id = ? AND title = ?`, artistID, title))
	if err != nil {
		return nil, err
	}

	if album != nil {
		changed := false
		if album.MBID == nil && mbid != nil && *mbid != "" {
			album.MBID = mbid
			changed = true
		}
		if album.ReleaseDate == nil && releaseDate != nil && *releaseDate != "" {
			album.ReleaseDate = releaseDate
			changed = true
		}
		if album.ImageURL == nil && imageURL != nil && *imageURL != "" {
			album.ImageURL = imageURL
			changed = true
		}
		if changed {
			_, err = db.Exec(`
			UPDATE albums SET mbid = ?, release_date = ?, image_url = ? WHERE id = ?`,
				album.MBID, album.ReleaseDate, album.ImageURL, album.ID)
			if err != nil {
				return nil, err
			}
		}
		return album, nil
	}

	album = &models.Album{
		ID:          uuid.NewString(),
		ArtistID:    artistID,
		Title:       title,
		ReleaseDate: releaseDate,
		MBID:        mbid,
		ImageURL:    imageURL,
	}
	_, err = db.Exec(`
	INSERT INTO albums (id, artist_id, title, release_date, mbid, image_url)
	VALUES (?, ?, ?, ?, ?, ?)`,
		album.ID, album.ArtistID, album.Title, album.ReleaseDate, album.MBID, album.ImageURL)
	if err != nil {
		return nil, err
	}

	return album, nil
}

// UpsertTrack matches by ISRC, then by MBID, then by (title, primary
// credited artist). External ids are back-attached when newly available.
func (db *DB) UpsertTrack(meta models.TrackMetadata) (*models.Track, error) {
	var track *models.Track
	var err error

	if meta.ISRC != nil && *meta.ISRC != "" {
		track, err = db.GetTrackByISRC(*meta.ISRC)
		if err != nil {
			return nil, err
		}
	}

	if track == nil && meta.RecordingMBID != nil && *meta.RecordingMBID != "" {
		track, err = db.GetTrackByMBID(*meta.RecordingMBID)
		if err != nil {
			return nil, err
		}
	}

	if track == nil {
		primary := primaryCreditName(meta.Artists)
		if primary != "" {
			track, err = db.scanTrack(db.QueryRow(trackSelect+`
			WHERE t.title = ? AND t.id IN (
				SELECT ta.track_id FROM track_artists ta
				JOIN artists a ON a.id = ta.artist_id
				WHERE ta.is_primary = 1 AND a.name = ?
			)`, meta.Title, primary))
			if err != nil {
				return nil, err
			}
		}
	}

	if track != nil {
		changed := false
		if track.MBID == nil && meta.RecordingMBID != nil && *meta.RecordingMBID != "" {
			track.MBID = meta.RecordingMBID
			changed = true
		}
		if track.ISRC == nil && meta.ISRC != nil && *meta.ISRC != "" {
			track.ISRC = meta.ISRC
			changed = true
		}
		if track.DurationMs == nil && meta.DurationMs != nil {
			track.DurationMs = meta.DurationMs
			changed = true
		}
		if changed {
			_, err = db.Exec(`
			UPDATE tracks SET mbid = ?, isrc = ?, duration_ms = ? WHERE id = ?`,
				track.MBID, track.ISRC, track.DurationMs, track.ID)
			if err != nil {
				return nil, err
			}
		}
		return track, nil
	}

	track = &models.Track{
		ID:         uuid.NewString(),
		Title:      meta.Title,
		DurationMs: meta.DurationMs,
		MBID:       meta.RecordingMBID,
		ISRC:       meta.ISRC,
		Explicit:   meta.Explicit,
	}
	_, err = db.Exec(`
	INSERT INTO tracks (id, title, duration_ms, mbid, isrc, explicit)
	VALUES (?, ?, ?, ?, ?, ?)`,
		track.ID, track.Title, track.DurationMs, track.MBID, track.ISRC, track.Explicit)
	if err != nil {
		return nil, err
	}

	return track, nil
}

func primaryCreditName(credits []models.ArtistCredit) string {
	for _, c := range credits {
		if c.IsPrimary {
			return c.Name
		}
	}
	if len(credits) > 0 {
		return credits[0].Name
	}
	return ""
}

// LinkTrackArtists upserts each credited artist and inserts the missing
// (track, artist) links with ordering and join phrases preserved.
func (db *DB) LinkTrackArtists(trackID string, credits []models.ArtistCredit) error {
	for i, credit := range credits {
		artist, err := db.UpsertArtist(credit.Name, credit.MBID)
		if err != nil {
			return fmt.Errorf("upserting credited artist %q: %w", credit.Name, err)
		}

		isPrimary := credit.IsPrimary || (i == 0 && !anyPrimary(credits))
		_, err = db.Exec(`
		INSERT INTO track_artists (track_id, artist_id, is_primary, position, join_phrase)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (track_id, artist_id) DO NOTHING`,
			trackID, artist.ID, isPrimary, i, credit.JoinPhrase)
		if err != nil {
			return err
		}
	}
	return nil
}

func anyPrimary(credits []models.ArtistCredit) bool {
	for _, c := range credits {
		if c.IsPrimary {
			return true
		}
	}
	return false
}

// LinkTrackAlbum inserts the link if absent.
func (db *DB) LinkTrackAlbum(trackID, albumID string, discNumber, position *int) error {
	_, err := db.Exec(`
	INSERT INTO track_albums (track_id, album_id, disc_number, position)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (track_id, album_id) DO NOTHING`,
		trackID, albumID, discNumber, position)
	return err
}

const artistSelect = `
	SELECT id, name, mbid, type, gender, begin_date_raw, end_date_raw, begin_date, end_date, image_url, last_enriched_at
	FROM artists`

func (db *DB) GetArtistByID(id string) (*models.Artist, error) {
	return db.scanArtist(db.QueryRow(artistSelect+` WHERE id = ?`, id))
}

func (db *DB) GetArtistByMBID(mbid string) (*models.Artist, error) {
	return db.scanArtist(db.QueryRow(artistSelect+` WHERE mbid = ?`, mbid))
}

func (db *DB) GetArtistByName(name string) (*models.Artist, error) {
	return db.scanArtist(db.QueryRow(artistSelect+` WHERE name = ? LIMIT 1`, name))
}

func (db *DB) scanArtist(row *sql.Row) (*models.Artist, error) {
	a := &models.Artist{}
	err := row.Scan(
		&a.ID, &a.Name, &a.MBID, &a.Type, &a.Gender,
		&a.BeginDateRaw, &a.EndDateRaw, &a.BeginDate, &a.EndDate,
		&a.ImageURL, &a.LastEnrichedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (db *DB) SetArtistMBID(artistID, mbid string) error {
	_, err := db.Exec(`UPDATE artists SET mbid = ? WHERE id = ? AND mbid IS NULL`, mbid, artistID)
	return err
}

// UpdateArtistDetails applies the enrichment worker's sync result.
func (db *DB) UpdateArtistDetails(a *models.Artist) error {
	_, err := db.Exec(`
	UPDATE artists
	SET name = ?, type = ?, gender = ?, begin_date_raw = ?, end_date_raw = ?, begin_date = ?, end_date = ?, image_url = ?
	WHERE id = ?`,
		a.Name, a.Type, a.Gender, a.BeginDateRaw, a.EndDateRaw, a.BeginDate, a.EndDate, a.ImageURL, a.ID)
	return err
}

const albumSelect = `
	SELECT id, artist_id, title, release_date, mbid, image_url, last_enriched_at
	FROM albums`

func (db *DB) GetAlbumByID(id string) (*models.Album, error) {
	return db.scanAlbum(db.QueryRow(albumSelect+` WHERE id = ?`, id))
}

func (db *DB) GetAlbumByMBID(mbid string) (*models.Album, error) {
	return db.scanAlbum(db.QueryRow(albumSelect+` WHERE mbid = ?`, mbid))
}

func (db *DB) scanAlbum(row *sql.Row) (*models.Album, error) {
	a := &models.Album{}
	err := row.Scan(&a.ID, &a.ArtistID, &a.Title, &a.ReleaseDate, &a.MBID, &a.ImageURL, &a.LastEnrichedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (db *DB) SetAlbumMBID(albumID, mbid string) error {
	_, err := db.Exec(`UPDATE albums SET mbid = ? WHERE id = ? AND mbid IS NULL`, mbid, albumID)
	return err
}

func (db *DB) UpdateAlbumDetails(a *models.Album) error {
	_, err := db.Exec(`
	UPDATE albums SET title = ?, release_date = ?, image_url = ? WHERE id = ?`,
		a.Title, a.ReleaseDate, a.ImageURL, a.ID)
	return err
}

const trackSelect = `
	SELECT t.id, t.title, t.duration_ms, t.mbid, t.isrc, t.explicit
	FROM tracks t`

func (db *DB) GetTrackByID(id string) (*models.Track, error) {
	return db.scanTrack(db.QueryRow(trackSelect+` WHERE t.id = ?`, id))
}

func (db *DB) GetTrackByISRC(isrc string) (*models.Track, error) {
	return db.scanTrack(db.QueryRow(trackSelect+` WHERE t.isrc = ?`, isrc))
}

func (db *DB) GetTrackByMBID(mbid string) (*models.Track, error) {
	return db.scanTrack(db.QueryRow(trackSelect+` WHERE t.mbid = ?`, mbid))
}

func (db *DB) scanTrack(row *sql.Row) (*models.Track, error) {
	t := &models.Track{}
	err := row.Scan(&t.ID, &t.Title, &t.DurationMs, &t.MBID, &t.ISRC, &t.Explicit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) SetTrackMBID(trackID, mbid string) error {
	_, err := db.Exec(`UPDATE tracks SET mbid = ? WHERE id = ? AND mbid IS NULL`, mbid, trackID)
	return err
}

func (db *DB) UpdateTrackDetails(t *models.Track) error {
	_, err := db.Exec(`
	UPDATE tracks SET title = ?, duration_ms = ?, isrc = ? WHERE id = ?`,
		t.Title, t.DurationMs, t.ISRC, t.ID)
	return err
}

// GetTrackArtists returns a track's credits ordered by position.
func (db *DB) GetTrackArtists(trackID string) ([]*models.TrackArtist, error) {
	rows, err := db.Query(`
	SELECT track_id, artist_id, is_primary, position, join_phrase
	FROM track_artists WHERE track_id = ? ORDER BY position`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*models.TrackArtist
	for rows.Next() {
		l := &models.TrackArtist{}
		if err := rows.Scan(&l.TrackID, &l.ArtistID, &l.IsPrimary, &l.Position, &l.JoinPhrase); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetPrimaryArtist returns the primary credited artist for a track, or
// nil, nil when the track has no credits yet.
func (db *DB) GetPrimaryArtist(trackID string) (*models.Artist, error) {
	return db.scanArtist(db.QueryRow(artistSelect+`
	WHERE id = (
		SELECT artist_id FROM track_artists
		WHERE track_id = ? ORDER BY is_primary DESC, position LIMIT 1
	)`, trackID))
}

// ListEntitiesForBulkSync returns ids of entities eligible for a bulk
// enqueue: resolve selects rows without an MBID, sync rows with one.
func (db *DB) ListEntitiesForBulkSync(entityKind, syncType string, limit int) ([]string, error) {
	var table string
	switch entityKind {
	case models.EntityArtist:
		table = "artists"
	case models.EntityAlbum:
		table = "albums"
	case models.EntityTrack:
		table = "tracks"
	default:
		return nil, fmt.Errorf("unknown entity kind %q", entityKind)
	}

	cond := "mbid IS NOT NULL"
	if syncType == "resolve" {
		cond = "mbid IS NULL"
	}

	rows, err := db.Query(`SELECT id FROM `+table+` WHERE `+cond+` ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetLastEnrichedAt stamps the entity a completed job enriched.
func (db *DB) SetLastEnrichedAt(entityKind, entityID string, at time.Time) error {
	switch entityKind {
	case models.EntityArtist:
		_, err := db.Exec(`UPDATE artists SET last_enriched_at = ? WHERE id = ?`, at, entityID)
		return err
	case models.EntityAlbum:
		_, err := db.Exec(`UPDATE albums SET last_enriched_at = ? WHERE id = ?`, at, entityID)
		return err
	case models.EntityTrack:
		// tracks carry no enrichment stamp column; the job row records it
		return nil
	default:
		return fmt.Errorf("unknown entity kind %q", entityKind)
	}
}
