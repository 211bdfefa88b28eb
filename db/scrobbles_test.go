package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorus-fm/chorus/models"
)

func seedUserAndTrack(t *testing.T, database *DB) (string, string) {
	t.Helper()
	user, err := database.CreateUser("listener@example.com", nil)
	require.NoError(t, err)
	track, err := database.UpsertTrack(models.TrackMetadata{Title: "Only Shallow"})
	require.NoError(t, err)
	return user.ID, track.ID
}

func TestInsertScrobbleAbsorbsDuplicate(t *testing.T) {
	database := newTestDB(t)
	userID, trackID := seedUserAndTrack(t, database)
	playedAt := time.Now().UnixMilli()

	s := &models.Scrobble{UserID: userID, TrackID: trackID, PlayedAt: playedAt, PlayedDurationMs: 60_000, Source: "player"}
	require.NoError(t, database.InsertScrobble(s))

	dup := &models.Scrobble{UserID: userID, TrackID: trackID, PlayedAt: playedAt, PlayedDurationMs: 90_000, Source: "history"}
	require.NoError(t, database.InsertScrobble(dup))

	views, err := database.GetRecentScrobbles(userID, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.EqualValues(t, 60_000, views[0].PlayedDurationMs)
}

func TestHasScrobbleNearWindows(t *testing.T) {
	database := newTestDB(t)
	userID, trackID := seedUserAndTrack(t, database)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	require.NoError(t, database.InsertScrobble(&models.Scrobble{
		UserID: userID, TrackID: trackID, PlayedAt: at, PlayedDurationMs: 60_000, Source: "player",
	}))

	// Window edges are inclusive.
	hit, err := database.HasScrobbleNear(userID, at+5000, 5*time.Second)
	require.NoError(t, err)
	require.True(t, hit)

	miss, err := database.HasScrobbleNear(userID, at+5001, 5*time.Second)
	require.NoError(t, err)
	require.False(t, miss)

	// Track-scoped variant ignores other tracks.
	other, err := database.UpsertTrack(models.TrackMetadata{Title: "Loomer"})
	require.NoError(t, err)
	hit, err = database.HasScrobbleForTrackNear(userID, trackID, at+3*time.Minute.Milliseconds(), 10*time.Minute)
	require.NoError(t, err)
	require.True(t, hit)
	miss, err = database.HasScrobbleForTrackNear(userID, other.ID, at, 10*time.Minute)
	require.NoError(t, err)
	require.False(t, miss)
}

func TestCursorAdvancesMonotonically(t *testing.T) {
	database := newTestDB(t)
	userID, _ := seedUserAndTrack(t, database)

	cursor, err := database.GetCursor(userID, "spotify")
	require.NoError(t, err)
	require.Zero(t, cursor)

	require.NoError(t, database.AdvanceCursor(userID, "spotify", 1000))
	require.NoError(t, database.AdvanceCursor(userID, "spotify", 500))

	cursor, err = database.GetCursor(userID, "spotify")
	require.NoError(t, err)
	require.EqualValues(t, 1000, cursor)

	require.NoError(t, database.AdvanceCursor(userID, "spotify", 2000))
	cursor, err = database.GetCursor(userID, "spotify")
	require.NoError(t, err)
	require.EqualValues(t, 2000, cursor)
}

func TestGetRecentScrobblesJoinsAndOrders(t *testing.T) {
	database := newTestDB(t)
	userID, trackID := seedUserAndTrack(t, database)

	require.NoError(t, database.LinkTrackArtists(trackID, []models.ArtistCredit{
		{Name: "My Bloody Valentine", IsPrimary: true},
	}))

	artist, err := database.GetPrimaryArtist(trackID)
	require.NoError(t, err)
	album, err := database.UpsertAlbum("Loveless", artist.ID, nil, nil, nil)
	require.NoError(t, err)

	base := time.Now().UnixMilli()
	require.NoError(t, database.InsertScrobble(&models.Scrobble{
		UserID: userID, TrackID: trackID, AlbumID: &album.ID,
		PlayedAt: base - 10_000, PlayedDurationMs: 60_000, Source: "player",
	}))
	require.NoError(t, database.InsertScrobble(&models.Scrobble{
		UserID: userID, TrackID: trackID,
		PlayedAt: base, PlayedDurationMs: 30_000, Skipped: true, Source: "history",
	}))

	views, err := database.GetRecentScrobbles(userID, 10)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.EqualValues(t, base, views[0].PlayedAt)
	require.True(t, views[0].Skipped)
	require.Nil(t, views[0].AlbumTitle)
	require.Equal(t, "My Bloody Valentine", views[0].ArtistName)
	require.Equal(t, "Loveless", *views[1].AlbumTitle)
	require.Equal(t, "Only Shallow", views[1].TrackTitle)
}

func TestPlaybackSessionRoundTrip(t *testing.T) {
	database := newTestDB(t)
	userID, _ := seedUserAndTrack(t, database)

	s := &models.PlaybackSession{
		UserID:         userID,
		Provider:       "spotify",
		TrackURI:       "spotify:track:1",
		StartedAt:      1000,
		LastSeenAt:     2000,
		LastProgressMs: 1500,
		AccumulatedMs:  900,
		IsPlaying:      true,
		DurationMs:     200_000,
		Snapshot: &models.TrackSnapshot{
			URI:     "spotify:track:1",
			Title:   "Only Shallow",
			Artists: []models.ArtistCredit{{Name: "My Bloody Valentine", IsPrimary: true}},
		},
	}
	require.NoError(t, database.SavePlaybackSession(s))

	got, err := database.GetPlaybackSession(userID, "spotify")
	require.NoError(t, err)
	require.Equal(t, s.TrackURI, got.TrackURI)
	require.Equal(t, s.AccumulatedMs, got.AccumulatedMs)
	require.NotNil(t, got.Snapshot)
	require.Equal(t, "Only Shallow", got.Snapshot.Title)

	s.AccumulatedMs = 5000
	s.Scrobbled = true
	require.NoError(t, database.SavePlaybackSession(s))

	got, err = database.GetPlaybackSession(userID, "spotify")
	require.NoError(t, err)
	require.EqualValues(t, 5000, got.AccumulatedMs)
	require.True(t, got.Scrobbled)

	require.NoError(t, database.DeletePlaybackSession(userID, "spotify"))
	got, err = database.GetPlaybackSession(userID, "spotify")
	require.NoError(t, err)
	require.Nil(t, got)
}
