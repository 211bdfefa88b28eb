// Package coverart fetches release artwork from the Cover Art Archive.
// Artwork is decoration: lookups that fail resolve to no art rather than
// surfacing an error to the caller.
package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://coverartarchive.org"

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

func NewClient(userAgent string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  userAgent,
		logger:     logger.With().Str("component", "coverart").Logger(),
	}
}

// WithBaseURL points the client at a different archive endpoint. Used by
// tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

type image struct {
	Front      bool   `json:"front"`
	Image      string `json:"image"`
	Thumbnails struct {
		Size250  string `json:"250,omitempty"`
		Size500  string `json:"500,omitempty"`
		Size1200 string `json:"1200,omitempty"`
		Small    string `json:"small,omitempty"`
		Large    string `json:"large,omitempty"`
	} `json:"thumbnails"`
}

type manifest struct {
	Images []image `json:"images"`
}

// FrontCoverURL returns the best front cover URL for a release, or nil
// when the archive has no art for it. Transport and decode failures are
// logged and reported as no art.
func (c *Client) FrontCoverURL(ctx context.Context, releaseID string) *string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/release/%s", c.baseURL, releaseID), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("release", releaseID).Msg("cover art fetch failed")
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", res.StatusCode).Str("release", releaseID).Msg("cover art fetch failed")
		return nil
	}

	var m manifest
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		c.logger.Debug().Err(err).Str("release", releaseID).Msg("cover art decode failed")
		return nil
	}

	best := pickImage(m.Images)
	if best == nil {
		return nil
	}
	url := bestURL(best)
	if url == "" {
		return nil
	}
	return &url
}

func pickImage(images []image) *image {
	for i := range images {
		if images[i].Front {
			return &images[i]
		}
	}
	if len(images) > 0 {
		return &images[0]
	}
	return nil
}

// bestURL prefers large thumbnails over the full-size scan, which can be
// tens of megabytes.
func bestURL(img *image) string {
	t := img.Thumbnails
	for _, u := range []string{t.Size1200, t.Size500, t.Large, t.Size250} {
		if u != "" {
			return u
		}
	}
	return img.Image
}
