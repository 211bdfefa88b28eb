package models

import "time"

// Artist types as reported by MusicBrainz.
const (
	ArtistTypePerson    = "person"
	ArtistTypeGroup     = "group"
	ArtistTypeOrchestra = "orchestra"
	ArtistTypeChoir     = "choir"
	ArtistTypeCharacter = "character"
	ArtistTypeOther     = "other"
)

type Artist struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	MBID           *string    `json:"mbid,omitempty"`
	Type           *string    `json:"type,omitempty"`
	Gender         *string    `json:"gender,omitempty"`
	BeginDateRaw   *string    `json:"beginDateRaw,omitempty"` // "YYYY", "YYYY-MM" or "YYYY-MM-DD"
	EndDateRaw     *string    `json:"endDateRaw,omitempty"`
	BeginDate      *string    `json:"beginDate,omitempty"` // normalized start-of-period fill
	EndDate        *string    `json:"endDate,omitempty"`
	ImageURL       *string    `json:"imageUrl,omitempty"`
	LastEnrichedAt *time.Time `json:"lastEnrichedAt,omitempty"`
}

// ArtistGroupMembership is one stint of a member-artist in a group-artist.
// A (member, group) pair may have multiple stints; uniqueness is over
// (member, group, raw-begin, raw-end). Raw dates are kept verbatim and
// empty when unknown.
type ArtistGroupMembership struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"memberId"`
	GroupID      string  `json:"groupId"`
	BeginDate    *string `json:"beginDate,omitempty"`
	EndDate      *string `json:"endDate,omitempty"`
	BeginDateRaw string  `json:"beginDateRaw"`
	EndDateRaw   string  `json:"endDateRaw"`
	Ended        bool    `json:"ended"`
}

type Album struct {
	ID             string     `json:"id"`
	ArtistID       string     `json:"artistId"`
	Title          string     `json:"title"`
	ReleaseDate    *string    `json:"releaseDate,omitempty"` // raw partial date from MusicBrainz
	MBID           *string    `json:"mbid,omitempty"`
	ImageURL       *string    `json:"imageUrl,omitempty"`
	LastEnrichedAt *time.Time `json:"lastEnrichedAt,omitempty"`
}

type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	DurationMs *int64  `json:"durationMs,omitempty"`
	MBID       *string `json:"mbid,omitempty"`
	ISRC       *string `json:"isrc,omitempty"`
	Explicit   bool    `json:"explicit"`
}

// TrackArtist links a track to one credited artist.
type TrackArtist struct {
	TrackID    string `json:"trackId"`
	ArtistID   string `json:"artistId"`
	IsPrimary  bool   `json:"isPrimary"`
	Position   int    `json:"position"`
	JoinPhrase string `json:"joinPhrase"`
}

type TrackAlbum struct {
	TrackID    string `json:"trackId"`
	AlbumID    string `json:"albumId"`
	DiscNumber *int   `json:"discNumber,omitempty"`
	Position   *int   `json:"position,omitempty"`
}

// ArtistCredit is one entry of a track's credited-artists list as it
// arrives from a provider or from MusicBrainz, before canonicalization.
type ArtistCredit struct {
	Name       string  `json:"name"`
	MBID       *string `json:"mbid,omitempty"`
	IsPrimary  bool    `json:"isPrimary"`
	JoinPhrase string  `json:"joinPhrase"`
}

// TrackMetadata carries everything the upsert layer needs to
// canonicalize one observed play.
type TrackMetadata struct {
	Title         string         `json:"title"`
	Artists       []ArtistCredit `json:"artists"`
	AlbumTitle    string         `json:"albumTitle"`
	AlbumMBID     *string        `json:"albumMbid,omitempty"`
	AlbumDate     *string        `json:"albumDate,omitempty"`
	AlbumImageURL *string        `json:"albumImageUrl,omitempty"`
	RecordingMBID *string        `json:"recordingMbid,omitempty"`
	ISRC          *string        `json:"isrc,omitempty"`
	DurationMs    *int64         `json:"durationMs,omitempty"`
	Explicit      bool           `json:"explicit"`
}
