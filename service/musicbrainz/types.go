package musicbrainz

// Wire types for the subset of the MusicBrainz API this service uses.

type ArtistCredit struct {
	Artist struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		SortName string `json:"sort-name,omitempty"`
	} `json:"artist"`
	Joinphrase string `json:"joinphrase,omitempty"`
	Name       string `json:"name"`
}

type Release struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status,omitempty"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD, YYYY-MM, or YYYY
	Country string `json:"country,omitempty"`
}

type Recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Length       int64          `json:"length,omitempty"` // milliseconds
	ISRCs        []string       `json:"isrcs,omitempty"`
	ArtistCredit []ArtistCredit `json:"artist-credit,omitempty"`
	Releases     []Release      `json:"releases,omitempty"`
}

type scoredRecording struct {
	Recording
	Score int `json:"score"`
}

type recordingSearchResponse struct {
	Count      int               `json:"count"`
	Recordings []scoredRecording `json:"recordings"`
}

type isrcResponse struct {
	ISRC       string      `json:"isrc"`
	Recordings []Recording `json:"recordings"`
}

type LifeSpan struct {
	Begin string `json:"begin,omitempty"`
	End   string `json:"end,omitempty"`
	Ended bool   `json:"ended,omitempty"`
}

// Relation is one edge of the artist relations graph. Group membership
// edges carry type "member of band"; direction tells which side the
// fetched artist is on.
type Relation struct {
	Type      string   `json:"type"`
	Direction string   `json:"direction"`
	Begin     string   `json:"begin,omitempty"`
	End       string   `json:"end,omitempty"`
	Ended     bool     `json:"ended,omitempty"`
	Artist    *RelArtist `json:"artist,omitempty"`
}

type RelArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Artist struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"` // "Person", "Group", ...
	Gender    string     `json:"gender,omitempty"`
	LifeSpan  *LifeSpan  `json:"life-span,omitempty"`
	Relations []Relation `json:"relations,omitempty"`
}

type scoredArtist struct {
	Artist
	Score int `json:"score"`
}

type artistSearchResponse struct {
	Count   int            `json:"count"`
	Artists []scoredArtist `json:"artists"`
}

type scoredRelease struct {
	Release
	Score int `json:"score"`
}

type releaseSearchResponse struct {
	Count    int             `json:"count"`
	Releases []scoredRelease `json:"releases"`
}
