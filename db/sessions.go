package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chorus-fm/chorus/models"
)

// The playback session is a singleton row per (user, provider); clearing
// it is the only way to reset the state machine.

// GetPlaybackSession returns nil, nil when no session exists.
func (db *DB) GetPlaybackSession(userID, provider string) (*models.PlaybackSession, error) {
	s := &models.PlaybackSession{}
	var snapshot sql.NullString

	err := db.QueryRow(`
	SELECT user_id, provider, track_uri, started_at, last_seen_at, last_progress_ms,
	       accumulated_ms, is_playing, duration_ms, snapshot, scrobbled
	FROM playback_sessions WHERE user_id = ? AND provider = ?`,
		userID, provider).Scan(
		&s.UserID, &s.Provider, &s.TrackURI, &s.StartedAt, &s.LastSeenAt,
		&s.LastProgressMs, &s.AccumulatedMs, &s.IsPlaying, &s.DurationMs,
		&snapshot, &s.Scrobbled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if snapshot.Valid && snapshot.String != "" {
		s.Snapshot = &models.TrackSnapshot{}
		if err := json.Unmarshal([]byte(snapshot.String), s.Snapshot); err != nil {
			return nil, fmt.Errorf("decoding session snapshot: %w", err)
		}
	}

	return s, nil
}

// SavePlaybackSession writes the whole session row, replacing any
// previous one for the (user, provider) pair.
func (db *DB) SavePlaybackSession(s *models.PlaybackSession) error {
	var snapshot any
	if s.Snapshot != nil {
		raw, err := json.Marshal(s.Snapshot)
		if err != nil {
			return fmt.Errorf("encoding session snapshot: %w", err)
		}
		snapshot = string(raw)
	}

	_, err := db.Exec(`
	INSERT INTO playback_sessions (user_id, provider, track_uri, started_at, last_seen_at, last_progress_ms, accumulated_ms, is_playing, duration_ms, snapshot, scrobbled)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, provider) DO UPDATE SET
		track_uri = excluded.track_uri,
		started_at = excluded.started_at,
		last_seen_at = excluded.last_seen_at,
		last_progress_ms = excluded.last_progress_ms,
		accumulated_ms = excluded.accumulated_ms,
		is_playing = excluded.is_playing,
		duration_ms = excluded.duration_ms,
		snapshot = excluded.snapshot,
		scrobbled = excluded.scrobbled`,
		s.UserID, s.Provider, s.TrackURI, s.StartedAt, s.LastSeenAt,
		s.LastProgressMs, s.AccumulatedMs, s.IsPlaying, s.DurationMs,
		snapshot, s.Scrobbled)
	return err
}

func (db *DB) DeletePlaybackSession(userID, provider string) error {
	_, err := db.Exec(`
	DELETE FROM playback_sessions WHERE user_id = ? AND provider = ?`, userID, provider)
	return err
}
