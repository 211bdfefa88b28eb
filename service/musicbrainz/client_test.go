package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newFastClient(t *testing.T, maxAttempts int, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:         server.URL,
		UserAgent:       "chorus-test/0 (test@example.com)",
		RequestInterval: time.Millisecond,
		MaxAttempts:     maxAttempts,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	_, err := NewClient(ClientConfig{}, zerolog.Nop())
	require.Error(t, err)
}

func TestGetJSONRetriesOn503(t *testing.T) {
	var calls atomic.Int32
	client := newFastClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "chorus-test/0 (test@example.com)", r.Header.Get("User-Agent"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id": "abc"}`))
	})

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, client.GetJSON(context.Background(), "/artist/abc", &out))
	require.Equal(t, "abc", out.ID)
	require.EqualValues(t, 3, calls.Load())
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newFastClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	var out map[string]any
	err := client.GetJSON(context.Background(), "/artist/abc", &out)
	require.ErrorContains(t, err, "after 2 attempts")
	require.EqualValues(t, 2, calls.Load())
}

func TestGetJSONNotFound(t *testing.T) {
	var calls atomic.Int32
	client := newFastClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	var out map[string]any
	err := client.GetJSON(context.Background(), "/artist/missing", &out)
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualValues(t, 1, calls.Load())
}

func TestGetJSONClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newFastClient(t, 5, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	})

	var out map[string]any
	err := client.GetJSON(context.Background(), "/recording", &out)
	require.ErrorContains(t, err, "400")
	require.EqualValues(t, 1, calls.Load())
}
