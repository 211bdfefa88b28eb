package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.spotify.com/v1"

// RecentlyPlayedMax is the provider's hard cap on history page size.
const RecentlyPlayedMax = 50

// Client talks to the streaming provider's player endpoints. It carries
// no tokens itself; callers pass a valid access token per request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultAPIBase,
		logger:     logger.With().Str("component", "spotify").Logger(),
	}
}

// WithBaseURL points the client at a different API host, for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) get(ctx context.Context, accessToken, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify request %s: %w", path, err)
	}
	return resp, nil
}

// GetCurrentlyPlaying polls the player. 204 means nothing is playing;
// non-track content is tagged and rejected by the caller.
func (c *Client) GetCurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error) {
	resp, err := c.get(ctx, accessToken, "/me/player/currently-playing")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &NowPlaying{State: StateNone}, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify currently-playing returned %d: %s", resp.StatusCode, body)
	}

	var wire wireCurrentlyPlaying
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding currently-playing: %w", err)
	}

	if wire.CurrentlyPlayingType != "track" || wire.Item == nil {
		return &NowPlaying{State: StateNotTrack, IsPlaying: wire.IsPlaying, Timestamp: wire.Timestamp}, nil
	}

	snapshot := wire.Item.toSnapshot()
	return &NowPlaying{
		State:      StateTrack,
		URI:        wire.Item.URI,
		ProgressMs: wire.ProgressMs,
		IsPlaying:  wire.IsPlaying,
		Timestamp:  wire.Timestamp,
		Track:      &snapshot,
	}, nil
}

// GetRecentlyPlayed fetches history after the given cursor (Unix ms,
// exclusive), newest first as the provider returns it, capped at 50.
func (c *Client) GetRecentlyPlayed(ctx context.Context, accessToken string, afterMs int64, limit int) ([]PlayedItem, error) {
	if limit <= 0 || limit > RecentlyPlayedMax {
		limit = RecentlyPlayedMax
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if afterMs > 0 {
		q.Set("after", strconv.FormatInt(afterMs, 10))
	}

	resp, err := c.get(ctx, accessToken, "/me/player/recently-played?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify recently-played returned %d: %s", resp.StatusCode, body)
	}

	var wire wireRecentlyPlayed
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding recently-played: %w", err)
	}

	items := make([]PlayedItem, 0, len(wire.Items))
	for _, it := range wire.Items {
		playedAt, err := parsePlayedAt(it.PlayedAt)
		if err != nil {
			c.logger.Warn().Str("played_at", it.PlayedAt).Err(err).Msg("skipping play with unparseable timestamp")
			continue
		}
		items = append(items, PlayedItem{PlayedAt: playedAt, Track: it.Track.toSnapshot()})
	}
	return items, nil
}

// GetProfile fetches the authenticated user's profile, used once at
// login to key the account row.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := c.get(ctx, accessToken, "/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spotify profile returned %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &profile, nil
}

// SortPlaysAscending orders history oldest first, the order the
// reconciler processes it in.
func SortPlaysAscending(items []PlayedItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].PlayedAt < items[j].PlayedAt })
}
