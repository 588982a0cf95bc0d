package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default client tuning. The token bucket refills at 5 req/s with a
// burst capacity of 100, matching the upstream plan limits.
const (
	DefaultBucketCapacity   = 100
	DefaultRefillRate       = 5.0
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultRetries          = 3
	DefaultBackoffBase      = 500 * time.Millisecond
	DefaultRequestTimeout   = 30 * time.Second

	// Hard cap on cursor-following for paginated endpoints
	maxPages = 50
)

// Options tunes the resilient client. Zero values fall back to defaults.
type Options struct {
	BucketCapacity   int
	RefillRate       float64
	FailureThreshold int
	ResetTimeout     time.Duration
	Retries          int
	BackoffBase      time.Duration
	RequestTimeout   time.Duration
}

// Client is the sole egress point to the upstream market data API.
// Every call goes through the shared token bucket and circuit breaker,
// both safe under concurrent use from multiple in-flight jobs.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *tokenBucket
	breaker     *circuitBreaker
	retries     int
	backoffBase time.Duration
}

// NewClient creates a resilient market data client
func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.BucketCapacity <= 0 {
		opts.BucketCapacity = DefaultBucketCapacity
	}
	if opts.RefillRate <= 0 {
		opts.RefillRate = DefaultRefillRate
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = DefaultResetTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
		},
		limiter:     newTokenBucket(opts.BucketCapacity, opts.RefillRate),
		breaker:     newCircuitBreaker(opts.FailureThreshold, opts.ResetTimeout),
		retries:     opts.Retries,
		backoffBase: opts.BackoffBase,
	}
}

// call performs one logical API call with rate limiting, circuit
// breaking and retries. 401/403 responses are returned immediately and
// do not count against the breaker.
func (c *Client) call(ctx context.Context, rawURL string, params url.Values, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if !c.breaker.Allow() {
			return ErrCircuitOpen
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doRequest(ctx, rawURL, params, out)
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		if IsAuthError(err) {
			// Misconfiguration, not upstream instability
			return err
		}

		c.breaker.RecordFailure()
		lastErr = err
		if attempt == c.retries {
			break
		}

		delay := c.backoffBase * (1 << attempt)
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > delay {
			delay = rle.RetryAfter
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// doRequest performs a single HTTP round trip and decodes the body
func (c *Client) doRequest(ctx context.Context, rawURL string, params url.Values, out any) error {
	fullURL := rawURL
	if !strings.HasPrefix(rawURL, "http") {
		fullURL = c.baseURL + rawURL
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 400:
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// ListTickers fetches the full active ticker universe, following the
// next_url cursor until exhausted.
func (c *Client) ListTickers(ctx context.Context) ([]TickerRef, error) {
	params := url.Values{}
	params.Set("market", "stocks")
	params.Set("active", "true")
	params.Set("limit", "1000")

	var all []TickerRef
	next := "/v3/reference/tickers"

	for page := 0; page < maxPages && next != ""; page++ {
		var resp tickersPage
		if err := c.call(ctx, next, params, &resp); err != nil {
			return nil, fmt.Errorf("list tickers: %w", err)
		}
		all = append(all, resp.Results...)
		next = resp.NextURL
		params = nil // cursor URLs carry their own query
	}

	return all, nil
}

// FullSnapshot fetches the bulk market snapshot in a single call
func (c *Client) FullSnapshot(ctx context.Context) ([]SnapshotTicker, error) {
	var resp snapshotResponse
	if err := c.call(ctx, "/v2/snapshot/locale/us/markets/stocks/tickers", nil, &resp); err != nil {
		return nil, fmt.Errorf("full snapshot: %w", err)
	}
	return resp.Tickers, nil
}

// PrevDay fetches the previous trading day aggregate for a symbol
func (c *Client) PrevDay(ctx context.Context, symbol string) (*DayBar, error) {
	var resp prevDayResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", symbol)
	if err := c.call(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("prev day %s: %w", symbol, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("prev day %s: no data", symbol)
	}
	return &resp.Results[0], nil
}

// indicator fetches the latest value of a windowed indicator
func (c *Client) indicator(ctx context.Context, kind, symbol string, window int) (float64, error) {
	params := url.Values{}
	params.Set("timespan", "day")
	params.Set("window", strconv.Itoa(window))
	params.Set("series_type", "close")
	params.Set("limit", "1")

	var resp indicatorResponse
	path := fmt.Sprintf("/v1/indicators/%s/%s", kind, symbol)
	if err := c.call(ctx, path, params, &resp); err != nil {
		return 0, fmt.Errorf("%s(%d) %s: %w", kind, window, symbol, err)
	}
	if len(resp.Results.Values) == 0 {
		return 0, nil
	}
	return resp.Results.Values[0].Value, nil
}

// SMA fetches the latest simple moving average for a symbol
func (c *Client) SMA(ctx context.Context, symbol string, window int) (float64, error) {
	return c.indicator(ctx, "sma", symbol, window)
}

// EMA fetches the latest exponential moving average for a symbol
func (c *Client) EMA(ctx context.Context, symbol string, window int) (float64, error) {
	return c.indicator(ctx, "ema", symbol, window)
}

// RSI fetches the latest relative strength index for a symbol
func (c *Client) RSI(ctx context.Context, symbol string, window int) (float64, error) {
	return c.indicator(ctx, "rsi", symbol, window)
}

// MACD fetches the latest MACD values for a symbol
func (c *Client) MACD(ctx context.Context, symbol string) (*MACDValue, error) {
	params := url.Values{}
	params.Set("timespan", "day")
	params.Set("series_type", "close")
	params.Set("limit", "1")

	var resp macdResponse
	path := fmt.Sprintf("/v1/indicators/macd/%s", symbol)
	if err := c.call(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("macd %s: %w", symbol, err)
	}
	if len(resp.Results.Values) == 0 {
		return &MACDValue{}, nil
	}
	return &resp.Results.Values[0], nil
}

// IndicatorSet fetches the full indicator bundle for a symbol. Each
// indicator is a separate upstream call.
func (c *Client) IndicatorSet(ctx context.Context, symbol string) (*IndicatorSet, error) {
	set := &IndicatorSet{}
	var err error

	if set.Sma50, err = c.SMA(ctx, symbol, 50); err != nil {
		return nil, err
	}
	if set.Sma200, err = c.SMA(ctx, symbol, 200); err != nil {
		return nil, err
	}
	if set.Ema12, err = c.EMA(ctx, symbol, 12); err != nil {
		return nil, err
	}
	if set.Ema26, err = c.EMA(ctx, symbol, 26); err != nil {
		return nil, err
	}
	if set.Rsi14, err = c.RSI(ctx, symbol, 14); err != nil {
		return nil, err
	}
	macd, err := c.MACD(ctx, symbol)
	if err != nil {
		return nil, err
	}
	set.MacdHist = macd.Histogram
	return set, nil
}

// Financials fetches financial statements for a symbol, following the
// filing-date cursor until exhausted.
func (c *Client) Financials(ctx context.Context, symbol, timeframe string) ([]FinancialRecord, error) {
	params := url.Values{}
	params.Set("ticker", symbol)
	params.Set("timeframe", timeframe)
	params.Set("limit", "20")

	var all []FinancialRecord
	next := "/vX/reference/financials"

	for page := 0; page < maxPages && next != ""; page++ {
		var resp financialsPage
		if err := c.call(ctx, next, params, &resp); err != nil {
			return nil, fmt.Errorf("financials %s: %w", symbol, err)
		}
		all = append(all, resp.Results...)
		next = resp.NextURL
		params = nil
	}

	return all, nil
}

// Dividends fetches the dividend history for a symbol
func (c *Client) Dividends(ctx context.Context, symbol string) ([]DividendRecord, error) {
	params := url.Values{}
	params.Set("ticker", symbol)
	params.Set("limit", "50")

	var resp dividendsPage
	if err := c.call(ctx, "/v3/reference/dividends", params, &resp); err != nil {
		return nil, fmt.Errorf("dividends %s: %w", symbol, err)
	}
	return resp.Results, nil
}

// Splits fetches the split history for a symbol
func (c *Client) Splits(ctx context.Context, symbol string) ([]SplitRecord, error) {
	params := url.Values{}
	params.Set("ticker", symbol)
	params.Set("limit", "50")

	var resp splitsPage
	if err := c.call(ctx, "/v3/reference/splits", params, &resp); err != nil {
		return nil, fmt.Errorf("splits %s: %w", symbol, err)
	}
	return resp.Results, nil
}

// TickerNews fetches recent news for a symbol
func (c *Client) TickerNews(ctx context.Context, symbol string, limit int) ([]NewsRecord, error) {
	params := url.Values{}
	params.Set("ticker", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var resp newsPage
	if err := c.call(ctx, "/v2/reference/news", params, &resp); err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}
	return resp.Results, nil
}

// Details fetches company details for a symbol
func (c *Client) Details(ctx context.Context, symbol string) (*TickerDetails, error) {
	var resp detailsResponse
	path := fmt.Sprintf("/v3/reference/tickers/%s", symbol)
	if err := c.call(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("details %s: %w", symbol, err)
	}
	return &resp.Results, nil
}

// Targets fetches analyst consensus price targets for a symbol
func (c *Client) Targets(ctx context.Context, symbol string) (*AnalystTargets, error) {
	var resp targetsResponse
	path := fmt.Sprintf("/v1/analyst/targets/%s", symbol)
	if err := c.call(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("targets %s: %w", symbol, err)
	}
	return &resp.Results, nil
}

// Status reports limiter and breaker state for health endpoints
func (c *Client) Status() map[string]interface{} {
	return map[string]interface{}{
		"breaker_state":    c.breaker.State(),
		"available_tokens": c.limiter.Available(),
	}
}

// parseRetryAfter reads a Retry-After header value in seconds
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sleepCtx sleeps for d unless the context is canceled first
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
