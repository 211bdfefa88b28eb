package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// ErrNotFound is the domain "no such entity" (404 or empty result), not
// a failure.
var ErrNotFound = errors.New("musicbrainz: not found")

// ClientConfig carries the rate-limit and retry knobs.
type ClientConfig struct {
	BaseURL         string
	UserAgent       string
	RequestInterval time.Duration // minimum gap between requests
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

// Client gates every MusicBrainz request through one serialized queue so
// the aggregate rate stays within the upstream limit no matter how many
// loops share it. 503s and transient transport errors retry with capped
// exponential backoff and ±20% jitter.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	mu         sync.Mutex // serial dispatch: one in-flight request
	cfg        ClientConfig
	logger     zerolog.Logger
}

func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, errors.New("musicbrainz: user agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 1100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		cfg:        cfg,
		logger:     logger.With().Str("component", "musicbrainz").Logger(),
	}, nil
}

// GetJSON performs a serialized GET of path (relative to the base URL)
// and decodes the response into out. 404 maps to ErrNotFound; other
// non-2xx statuses are returned unretried.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		retry, err := c.doOnce(ctx, path, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}

		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		backoff := jitter(c.backoff(attempt))
		c.logger.Warn().
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("retrying musicbrainz request")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("musicbrainz request %s failed after %d attempts: %w", path, c.cfg.MaxAttempts, lastErr)
}

// doOnce returns (retryable, error).
func (c *Client) doOnce(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Connection resets, refused connections, timeouts and DNS
		// failures all land here; all are worth retrying.
		return true, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, ErrNotFound
	case resp.StatusCode == http.StatusServiceUnavailable:
		io.Copy(io.Discard, resp.Body)
		return true, errors.New("upstream 503")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("musicbrainz returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return false, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.BackoffCap {
			return c.cfg.BackoffCap
		}
	}
	return d
}

// jitter spreads a delay by ±20%.
func jitter(d time.Duration) time.Duration {
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}
