package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/chorus-fm/chorus/models"
)

// InsertScrobble records one play. A unique-constraint violation on the
// (user, track, played_at) key is absorbed silently: the conflict target
// is the dedupe key, so the play is already recorded.
func (db *DB) InsertScrobble(s *models.Scrobble) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(`
	INSERT INTO scrobbles (id, user_id, track_id, album_id, played_at, played_duration_ms, skipped, source, import_batch_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TrackID, s.AlbumID, s.PlayedAt, s.PlayedDurationMs,
		s.Skipped, s.Source, s.ImportBatchID, s.CreatedAt)

	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil
		}
		return err
	}
	return nil
}

// HasScrobbleNear reports whether the user has any scrobble with
// played_at inside [at−window, at+window]. The session engine uses this
// with a 5 s window against started_at to suppress double emission on
// pause/resume races.
func (db *DB) HasScrobbleNear(userID string, at int64, window time.Duration) (bool, error) {
	w := window.Milliseconds()
	var n int
	err := db.QueryRow(`
	SELECT COUNT(*) FROM scrobbles
	WHERE user_id = ? AND played_at BETWEEN ? AND ?`,
		userID, at-w, at+w).Scan(&n)
	return n > 0, err
}

// HasScrobbleForTrackNear is the reconciler's cross-path dedupe: same
// (user, track) inside [at−window, at+window]. The window must exceed
// typical track length because the two ingestion paths disagree on
// whether played_at marks the start or the end of the play.
func (db *DB) HasScrobbleForTrackNear(userID, trackID string, at int64, window time.Duration) (bool, error) {
	w := window.Milliseconds()
	var n int
	err := db.QueryRow(`
	SELECT COUNT(*) FROM scrobbles
	WHERE user_id = ? AND track_id = ? AND played_at BETWEEN ? AND ?`,
		userID, trackID, at-w, at+w).Scan(&n)
	return n > 0, err
}

// GetCursor returns 0 when the (user, provider) pair has no cursor yet.
func (db *DB) GetCursor(userID, provider string) (int64, error) {
	var last int64
	err := db.QueryRow(`
	SELECT last_played_at FROM scrobble_cursors WHERE user_id = ? AND provider = ?`,
		userID, provider).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last, nil
}

// AdvanceCursor moves the cursor forward, never backward.
func (db *DB) AdvanceCursor(userID, provider string, playedAt int64) error {
	_, err := db.Exec(`
	INSERT INTO scrobble_cursors (user_id, provider, last_played_at)
	VALUES (?, ?, ?)
	ON CONFLICT (user_id, provider) DO UPDATE
	SET last_played_at = excluded.last_played_at
	WHERE excluded.last_played_at > scrobble_cursors.last_played_at`,
		userID, provider, playedAt)
	return err
}

// ScrobbleView is a scrobble joined with its track, primary artist and
// album for the read-side API.
type ScrobbleView struct {
	models.Scrobble
	TrackTitle string  `json:"trackTitle"`
	ArtistName string  `json:"artistName"`
	AlbumTitle *string `json:"albumTitle,omitempty"`
}

// GetRecentScrobbles lists a user's plays, newest first.
func (db *DB) GetRecentScrobbles(userID string, limit int) ([]*ScrobbleView, error) {
	rows, err := db.Query(`
	SELECT s.id, s.user_id, s.track_id, s.album_id, s.played_at, s.played_duration_ms,
	       s.skipped, s.source, s.import_batch_id, s.created_at,
	       t.title,
	       COALESCE((
	           SELECT a.name FROM track_artists ta
	           JOIN artists a ON a.id = ta.artist_id
	           WHERE ta.track_id = t.id
	           ORDER BY ta.is_primary DESC, ta.position LIMIT 1
	       ), ''),
	       al.title
	FROM scrobbles s
	JOIN tracks t ON t.id = s.track_id
	LEFT JOIN albums al ON al.id = s.album_id
	WHERE s.user_id = ?
	ORDER BY s.played_at DESC
	LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*ScrobbleView
	for rows.Next() {
		v := &ScrobbleView{}
		err := rows.Scan(
			&v.ID, &v.UserID, &v.TrackID, &v.AlbumID, &v.PlayedAt, &v.PlayedDurationMs,
			&v.Skipped, &v.Source, &v.ImportBatchID, &v.CreatedAt,
			&v.TrackTitle, &v.ArtistName, &v.AlbumTitle)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
