package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		BucketCapacity:   100,
		RefillRate:       1000,
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
		Retries:          3,
		BackoffBase:      time.Millisecond,
	}
}

func TestClientRetriesRateLimitWithRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"tickers":[{"ticker":"AAPL","day":{"c":190,"v":1000}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", testOptions())
	tickers, err := client.FullSnapshot(context.Background())

	require.NoError(t, err)
	require.Len(t, tickers, 1)
	assert.Equal(t, "AAPL", tickers[0].Ticker)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryAuthFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key", testOptions())
	_, err := client.FullSnapshot(context.Background())

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "auth failures must not be retried")

	// auth failures never count against the breaker
	assert.Equal(t, "closed", client.breaker.State())
}

func TestClientCircuitOpensAndFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := testOptions()
	opts.FailureThreshold = 2
	opts.Retries = 1
	client := NewClient(server.URL, "key", opts)

	_, err := client.FullSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, "open", client.breaker.State())

	transportCalls := atomic.LoadInt32(&calls)
	_, err = client.FullSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, transportCalls, atomic.LoadInt32(&calls), "open breaker must not reach the transport")
}

func TestClientFollowsNextURLCursor(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "page2" {
			fmt.Fprint(w, `{"results":[{"ticker":"MSFT","active":true}]}`)
			return
		}
		fmt.Fprintf(w, `{"results":[{"ticker":"AAPL","active":true}],"next_url":"%s/v3/reference/tickers?cursor=page2"}`, server.URL)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", testOptions())
	tickers, err := client.ListTickers(context.Background())

	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "AAPL", tickers[0].Ticker)
	assert.Equal(t, "MSFT", tickers[1].Ticker)
}

func TestClientIndicatorSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/indicators/sma/AAPL" && r.URL.Query().Get("window") == "50":
			fmt.Fprint(w, `{"results":{"values":[{"value":100}]}}`)
		case r.URL.Path == "/v1/indicators/sma/AAPL":
			fmt.Fprint(w, `{"results":{"values":[{"value":90}]}}`)
		case r.URL.Path == "/v1/indicators/ema/AAPL" && r.URL.Query().Get("window") == "12":
			fmt.Fprint(w, `{"results":{"values":[{"value":101}]}}`)
		case r.URL.Path == "/v1/indicators/ema/AAPL":
			fmt.Fprint(w, `{"results":{"values":[{"value":99}]}}`)
		case r.URL.Path == "/v1/indicators/rsi/AAPL":
			fmt.Fprint(w, `{"results":{"values":[{"value":55}]}}`)
		case r.URL.Path == "/v1/indicators/macd/AAPL":
			fmt.Fprint(w, `{"results":{"values":[{"value":1.5,"signal":1.2,"histogram":0.3}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", testOptions())
	set, err := client.IndicatorSet(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, 100.0, set.Sma50)
	assert.Equal(t, 90.0, set.Sma200)
	assert.Equal(t, 101.0, set.Ema12)
	assert.Equal(t, 99.0, set.Ema26)
	assert.Equal(t, 55.0, set.Rsi14)
	assert.InDelta(t, 0.3, set.MacdHist, 1e-9)
}

func TestClientStatusExposesInternals(t *testing.T) {
	client := NewClient("http://example.invalid", "key", testOptions())

	status := client.Status()
	assert.Equal(t, "closed", status["breaker_state"])
	assert.Contains(t, status, "available_tokens")
}
