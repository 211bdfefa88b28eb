package db

// Dashboard aggregates. These stay simple on purpose: play counts over
// the scrobbles of one user, grouped by credited artist.

// ArtistPlayCount is one row of a top-artists listing.
type ArtistPlayCount struct {
	ArtistID   string  `json:"artistId"`
	ArtistName string  `json:"artistName"`
	ArtistType *string `json:"artistType,omitempty"`
	ImageURL   *string `json:"imageUrl,omitempty"`
	PlayCount  int     `json:"playCount"`
}

const topArtistsQuery = `
	SELECT a.id, a.name, a.type, a.image_url, COUNT(*) AS plays
	FROM scrobbles s
	JOIN track_artists ta ON ta.track_id = s.track_id
	JOIN artists a ON a.id = ta.artist_id
	WHERE s.user_id = ? AND a.type = ?
	GROUP BY a.id
	ORDER BY plays DESC, a.name
	LIMIT ?`

// GetTopGroups lists the user's most played group artists.
func (db *DB) GetTopGroups(userID string, limit int) ([]*ArtistPlayCount, error) {
	return db.queryArtistPlayCounts(topArtistsQuery, userID, "group", limit)
}

// GetTopSoloArtists lists the user's most played person artists.
func (db *DB) GetTopSoloArtists(userID string, limit int) ([]*ArtistPlayCount, error) {
	return db.queryArtistPlayCounts(topArtistsQuery, userID, "person", limit)
}

func (db *DB) queryArtistPlayCounts(query string, args ...any) ([]*ArtistPlayCount, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []*ArtistPlayCount
	for rows.Next() {
		c := &ArtistPlayCount{}
		if err := rows.Scan(&c.ArtistID, &c.ArtistName, &c.ArtistType, &c.ImageURL, &c.PlayCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
