package spotify

import (
	"time"

	"github.com/chorus-fm/chorus/models"
)

// State tags what a currently-playing poll returned. The provider JSON is
// heterogeneous (track, episode, ad, unknown); non-track items are
// rejected at this boundary.
type State int

const (
	// StateNone: 204, nothing playing.
	StateNone State = iota
	// StateNotTrack: something is playing but it is not a music track.
	StateNotTrack
	// StateTrack: a track snapshot was captured.
	StateTrack
)

// NowPlaying is one poll of the currently-playing endpoint.
type NowPlaying struct {
	State      State
	URI        string
	ProgressMs int64
	IsPlaying  bool
	Timestamp  int64 // provider clock, Unix ms
	Track      *models.TrackSnapshot
}

// PlayedItem is one entry of the recently-played history. PlayedAt is the
// provider's timestamp in Unix ms and marks the END of the play.
type PlayedItem struct {
	PlayedAt int64
	Track    models.TrackSnapshot
}

// Profile is the authenticated user's provider profile.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Wire types, decoded verbatim from the provider.

type wireArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type wireAlbum struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	ReleaseDate string `json:"release_date"`
	Images      []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"images"`
}

type wireTrack struct {
	Name        string       `json:"name"`
	URI         string       `json:"uri"`
	DurationMs  int64        `json:"duration_ms"`
	Explicit    bool         `json:"explicit"`
	Artists     []wireArtist `json:"artists"`
	Album       wireAlbum    `json:"album"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type wireCurrentlyPlaying struct {
	Item                 *wireTrack `json:"item"`
	ProgressMs           int64      `json:"progress_ms"`
	IsPlaying            bool       `json:"is_playing"`
	CurrentlyPlayingType string     `json:"currently_playing_type"`
	Timestamp            int64      `json:"timestamp"`
}

type wireRecentlyPlayed struct {
	Items []struct {
		Track    wireTrack `json:"track"`
		PlayedAt string    `json:"played_at"`
	} `json:"items"`
}

func (t *wireTrack) toSnapshot() models.TrackSnapshot {
	artists := make([]models.ArtistCredit, 0, len(t.Artists))
	for i, a := range t.Artists {
		artists = append(artists, models.ArtistCredit{
			Name:      a.Name,
			IsPrimary: i == 0,
		})
	}

	var isrc *string
	if t.ExternalIDs.ISRC != "" {
		s := t.ExternalIDs.ISRC
		isrc = &s
	}

	return models.TrackSnapshot{
		URI:        t.URI,
		Title:      t.Name,
		Artists:    artists,
		AlbumTitle: t.Album.Name,
		ISRC:       isrc,
		DurationMs: t.DurationMs,
		Explicit:   t.Explicit,
		URL:        t.ExternalURLs.Spotify,
	}
}

func parsePlayedAt(raw string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
