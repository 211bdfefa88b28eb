package models

import "time"

// Scrobble is one recorded play, uniquely keyed by (user, track, played_at).
// PlayedAt is provider-authoritative, in Unix milliseconds.
type Scrobble struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	TrackID          string    `json:"trackId"`
	AlbumID          *string   `json:"albumId,omitempty"`
	PlayedAt         int64     `json:"playedAt"`
	PlayedDurationMs int64     `json:"playedDurationMs"`
	Skipped          bool      `json:"skipped"`
	Source           string    `json:"source"`
	ImportBatchID    *string   `json:"importBatchId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ScrobbleCursor is the highest played_at (Unix ms) successfully processed
// by the reconciler for one (user, provider). It only moves forward.
type ScrobbleCursor struct {
	UserID       string `json:"userId"`
	Provider     string `json:"provider"`
	LastPlayedAt int64  `json:"lastPlayedAt"`
}

// TrackSnapshot is the raw provider metadata captured when a playback
// session begins. Finalization never re-queries the provider; by the time
// a track change is observed the previous item is gone from the endpoint.
type TrackSnapshot struct {
	URI        string         `json:"uri"`
	Title      string         `json:"title"`
	Artists    []ArtistCredit `json:"artists"`
	AlbumTitle string         `json:"albumTitle"`
	ISRC       *string        `json:"isrc,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Explicit   bool           `json:"explicit"`
	URL        string         `json:"url,omitempty"`
}

// PlaybackSession is the singleton per-(user, provider) row driven by the
// currently-playing poller. Times are Unix milliseconds.
type PlaybackSession struct {
	UserID         string         `json:"userId"`
	Provider       string         `json:"provider"`
	TrackURI       string         `json:"trackUri"`
	StartedAt      int64          `json:"startedAt"`
	LastSeenAt     int64          `json:"lastSeenAt"`
	LastProgressMs int64          `json:"lastProgressMs"`
	AccumulatedMs  int64          `json:"accumulatedMs"`
	IsPlaying      bool           `json:"isPlaying"`
	DurationMs     int64          `json:"durationMs"`
	Snapshot       *TrackSnapshot `json:"snapshot,omitempty"`
	Scrobbled      bool           `json:"scrobbled"`
}
