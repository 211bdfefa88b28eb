package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chorus-fm/chorus/models"
)

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func TestUpsertArtistIdempotent(t *testing.T) {
	database := newTestDB(t)

	first, err := database.UpsertArtist("Stereolab", nil)
	require.NoError(t, err)

	second, err := database.UpsertArtist("Stereolab", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestUpsertArtistBackAttachesMBIDAndQueuesSync(t *testing.T) {
	database := newTestDB(t)

	first, err := database.UpsertArtist("Stereolab", nil)
	require.NoError(t, err)
	require.Nil(t, first.MBID)

	second, err := database.UpsertArtist("Stereolab", strPtr("mbid-stereolab"))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "mbid-stereolab", *second.MBID)

	stats, err := database.GetQueueStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)

	// Same mbid again matches by mbid and changes nothing.
	third, err := database.UpsertArtist("stereolab renamed", strPtr("mbid-stereolab"))
	require.NoError(t, err)
	require.Equal(t, first.ID, third.ID)
}

func TestUpsertTrackMatchPrecedence(t *testing.T) {
	database := newTestDB(t)

	meta := models.TrackMetadata{
		Title:      "French Disko",
		Artists:    []models.ArtistCredit{{Name: "Stereolab", IsPrimary: true}},
		ISRC:       strPtr("GBAAA9300001"),
		DurationMs: int64Ptr(205_000),
	}

	track, err := database.UpsertTrack(meta)
	require.NoError(t, err)
	require.NoError(t, database.LinkTrackArtists(track.ID, meta.Artists))

	// Same ISRC with different decoration matches the existing row and
	// back-attaches the mbid.
	meta2 := meta
	meta2.Title = "French Disko - Single Version"
	meta2.RecordingMBID = strPtr("mbid-disko")
	again, err := database.UpsertTrack(meta2)
	require.NoError(t, err)
	require.Equal(t, track.ID, again.ID)
	require.Equal(t, "mbid-disko", *again.MBID)

	// No external ids: falls back to (title, primary artist).
	meta3 := models.TrackMetadata{
		Title:   "French Disko",
		Artists: []models.ArtistCredit{{Name: "Stereolab", IsPrimary: true}},
	}
	byName, err := database.UpsertTrack(meta3)
	require.NoError(t, err)
	require.Equal(t, track.ID, byName.ID)
}

func TestUpsertAlbumBackfillsFields(t *testing.T) {
	database := newTestDB(t)

	artist, err := database.UpsertArtist("Stereolab", nil)
	require.NoError(t, err)

	album, err := database.UpsertAlbum("Transient Random-Noise Bursts", artist.ID, nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, album.MBID)

	again, err := database.UpsertAlbum("Transient Random-Noise Bursts", artist.ID,
		strPtr("mbid-trnb"), strPtr("1993-08"), strPtr("https://img/cover.jpg"))
	require.NoError(t, err)
	require.Equal(t, album.ID, again.ID)
	require.Equal(t, "mbid-trnb", *again.MBID)
	require.Equal(t, "1993-08", *again.ReleaseDate)
	require.Equal(t, "https://img/cover.jpg", *again.ImageURL)
}

func TestLinkTrackArtistsPreservesOrder(t *testing.T) {
	database := newTestDB(t)

	track, err := database.UpsertTrack(models.TrackMetadata{Title: "Collab"})
	require.NoError(t, err)

	credits := []models.ArtistCredit{
		{Name: "Main Act", IsPrimary: true, JoinPhrase: " feat. "},
		{Name: "Guest"},
	}
	require.NoError(t, database.LinkTrackArtists(track.ID, credits))
	// Linking twice inserts nothing new.
	require.NoError(t, database.LinkTrackArtists(track.ID, credits))

	links, err := database.GetTrackArtists(track.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.True(t, links[0].IsPrimary)
	require.Equal(t, " feat. ", links[0].JoinPhrase)
	require.False(t, links[1].IsPrimary)

	primary, err := database.GetPrimaryArtist(track.ID)
	require.NoError(t, err)
	require.Equal(t, "Main Act", primary.Name)
}

func TestSetMBIDOnlyWhenAbsent(t *testing.T) {
	database := newTestDB(t)

	track, err := database.UpsertTrack(models.TrackMetadata{Title: "Song", RecordingMBID: strPtr("mbid-a")})
	require.NoError(t, err)

	require.NoError(t, database.SetTrackMBID(track.ID, "mbid-b"))

	got, err := database.GetTrackByID(track.ID)
	require.NoError(t, err)
	require.Equal(t, "mbid-a", *got.MBID)
}

func TestListEntitiesForBulkSync(t *testing.T) {
	database := newTestDB(t)

	withMBID, err := database.UpsertArtist("Known", strPtr("mbid-known"))
	require.NoError(t, err)
	withoutMBID, err := database.UpsertArtist("Unknown", nil)
	require.NoError(t, err)

	resolve, err := database.ListEntitiesForBulkSync(models.EntityArtist, "resolve", 10)
	require.NoError(t, err)
	require.Equal(t, []string{withoutMBID.ID}, resolve)

	sync, err := database.ListEntitiesForBulkSync(models.EntityArtist, "sync", 10)
	require.NoError(t, err)
	require.Equal(t, []string{withMBID.ID}, sync)

	_, err = database.ListEntitiesForBulkSync("playlist", "sync", 10)
	require.Error(t, err)
}
