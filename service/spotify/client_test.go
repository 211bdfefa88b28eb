package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(zerolog.Nop()).WithBaseURL(server.URL)
}

func TestGetCurrentlyPlayingNothing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	np, err := client.GetCurrentlyPlaying(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, StateNone, np.State)
}

func TestGetCurrentlyPlayingEpisode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"currently_playing_type":"episode","is_playing":true,"item":null}`))
	})

	np, err := client.GetCurrentlyPlaying(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, StateNotTrack, np.State)
	require.True(t, np.IsPlaying)
	require.Nil(t, np.Track)
}

func TestGetCurrentlyPlayingTrack(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"currently_playing_type": "track",
			"is_playing": true,
			"progress_ms": 42000,
			"timestamp": 1700000000000,
			"item": {
				"name": "Windowlicker",
				"uri": "spotify:track:abc",
				"duration_ms": 366000,
				"explicit": false,
				"artists": [{"name": "Aphex Twin", "id": "a1"}],
				"album": {"name": "Windowlicker", "id": "al1", "release_date": "1999-03-22"},
				"external_ids": {"isrc": "GBBPW9900042"},
				"external_urls": {"spotify": "https://open.spotify.com/track/abc"}
			}
		}`))
	})

	np, err := client.GetCurrentlyPlaying(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, StateTrack, np.State)
	require.Equal(t, "spotify:track:abc", np.URI)
	require.EqualValues(t, 42000, np.ProgressMs)

	require.NotNil(t, np.Track)
	require.Equal(t, "Windowlicker", np.Track.Title)
	require.EqualValues(t, 366000, np.Track.DurationMs)
	require.Equal(t, "GBBPW9900042", *np.Track.ISRC)
	require.Len(t, np.Track.Artists, 1)
	require.True(t, np.Track.Artists[0].IsPrimary)
}

func TestGetRecentlyPlayed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1700000000000", r.URL.Query().Get("after"))
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"items": [
			{"track": {"name": "Ageispolis", "uri": "spotify:track:a", "duration_ms": 322000,
			           "artists": [{"name": "Aphex Twin"}], "album": {"name": "Selected Ambient Works 85-92"}},
			 "played_at": "2026-03-01T12:00:00.000Z"},
			{"track": {"name": "Xtal", "uri": "spotify:track:b", "duration_ms": 293000,
			           "artists": [{"name": "Aphex Twin"}], "album": {"name": "Selected Ambient Works 85-92"}},
			 "played_at": "not-a-timestamp"}
		]}`))
	})

	items, err := client.GetRecentlyPlayed(context.Background(), "tok", 1_700_000_000_000, 0)
	require.NoError(t, err)
	// The unparseable item is skipped, not fatal.
	require.Len(t, items, 1)
	require.Equal(t, "Ageispolis", items[0].Track.Title)
	require.EqualValues(t, 1772366400000, items[0].PlayedAt)
}

func TestSortPlaysAscending(t *testing.T) {
	items := []PlayedItem{{PlayedAt: 300}, {PlayedAt: 100}, {PlayedAt: 200}}
	SortPlaysAscending(items)
	require.EqualValues(t, 100, items[0].PlayedAt)
	require.EqualValues(t, 200, items[1].PlayedAt)
	require.EqualValues(t, 300, items[2].PlayedAt)
}
