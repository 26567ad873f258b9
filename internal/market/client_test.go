package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(url string, attempts int) *Client {
	return NewClient(ClientConfig{
		URL:     url,
		Timeout: 2 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond},
	})
}

func TestClient_RetryBoundOnPermanentFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Fetch(context.Background())

	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, 3, ferr.Attempts)
	require.Equal(t, 3, calls)
}

func TestClient_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"content":[{"companyName":"ACME","last":1}]}`))
	}))
	defer srv.Close()

	raw, err := testClient(srv.URL, 3).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Contains(t, env, "content")
}

func TestClient_MalformedBodyCountsAsFailedAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Fetch(context.Background())

	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, 2, calls)
}

func TestClient_SendsQueryPayloadAndHeaders(t *testing.T) {
	var got quoteRequest
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "bvlwatch/1.0"},
		Sector:  "financials",
		Retry:   RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bvlwatch/1.0", ua)
	require.Equal(t, "financials", got.Sector)
	require.True(t, got.Today)
}
