package musicbrainz

// Cache memoizes resolver lookups for the lifetime of one worker cycle.
// It is cheap to build and thrown away when the cycle ends, so entries
// never need expiry. Nil values are cached too: a lookup that resolved
// to nothing stays nothing for the rest of the cycle.
type Cache struct {
	isrc      map[string]*string
	search    map[string]*string
	recording map[string]*Recording
	artist    map[string]*Artist
	cover     map[string]*string
}

func NewCache() *Cache {
	return &Cache{
		isrc:      make(map[string]*string),
		search:    make(map[string]*string),
		recording: make(map[string]*Recording),
		artist:    make(map[string]*Artist),
		cover:     make(map[string]*string),
	}
}

// CoverURL memoizes release-id → cover URL through fetch. Errors are not
// cached; a failed fetch may be retried by a later job in the same cycle.
func (c *Cache) CoverURL(releaseID string, fetch func() (*string, error)) (*string, error) {
	if url, ok := c.cover[releaseID]; ok {
		return url, nil
	}
	url, err := fetch()
	if err != nil {
		return nil, err
	}
	c.cover[releaseID] = url
	return url, nil
}
