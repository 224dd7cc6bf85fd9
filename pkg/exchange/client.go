// Package exchange is a REST client for a Coinbase-Exchange-compatible
// trading API: public market data (spot price, historical candles) plus
// signed private endpoints for order placement.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"cryptobot/internal/model"
)

const (
	defaultBaseURL = "https://api.exchange.coinbase.com"
	defaultTimeout = 10 * time.Second

	// The candles endpoint caps one response at 300 buckets; longer
	// ranges are fetched in chunks.
	maxCandlesPerRequest = 300

	maxRetries   = 3
	retryBackoff = 500 * time.Millisecond
)

// Config configures the exchange client. Key, Secret and Passphrase are
// only needed for private endpoints; a client without them still serves
// market data.
type Config struct {
	BaseURL    string // default: https://api.exchange.coinbase.com
	Key        string
	Secret     string // base64-encoded API secret
	Passphrase string
	Timeout    time.Duration // default: 10s
}

// Client is the HTTP exchange client. Safe for concurrent use.
type Client struct {
	baseURL    string
	key        string
	secret     string
	passphrase string
	httpClient *http.Client

	// test hook
	now func() time.Time
}

// New creates an exchange client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		key:        cfg.Key,
		secret:     cfg.Secret,
		passphrase: cfg.Passphrase,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// SpotPrice returns the last trade price for a pair.
func (c *Client) SpotPrice(ctx context.Context, pair string) (float64, error) {
	var ticker struct {
		Price string `json:"price"`
	}
	path := "/products/" + pair + "/ticker"
	if err := c.get(ctx, path, &ticker); err != nil {
		return 0, fmt.Errorf("ticker %s: %w", pair, err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: bad price %q: %w", pair, ticker.Price, err)
	}
	return price, nil
}

// Candles fetches OHLC candles for [start, end] at the given granularity
// in seconds, chunking the range to respect the per-request bucket cap.
// Results are deduplicated and sorted ascending by time.
func (c *Client) Candles(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("candles %s: granularity must be positive", pair)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("candles %s: start must precede end", pair)
	}

	chunk := time.Duration(maxCandlesPerRequest*granularity) * time.Second
	seen := make(map[int64]model.Candle)

	for from := start; from.Before(end); from = from.Add(chunk) {
		to := from.Add(chunk)
		if to.After(end) {
			to = end
		}
		batch, err := c.candleChunk(ctx, pair, from, to, granularity)
		if err != nil {
			return nil, err
		}
		for _, cd := range batch {
			seen[cd.Time] = cd
		}
	}

	out := make([]model.Candle, 0, len(seen))
	for _, cd := range seen {
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (c *Client) candleChunk(ctx context.Context, pair string, start, end time.Time, granularity int) ([]model.Candle, error) {
	path := fmt.Sprintf("/products/%s/candles?start=%s&end=%s&granularity=%d",
		pair, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), granularity)

	// The wire format is positional: [time, low, high, open, close, volume].
	var raw [][6]float64
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("candles %s: %w", pair, err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		candles = append(candles, model.Candle{
			Time:   int64(row[0]),
			Low:    row[1],
			High:   row[2],
			Open:   row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	return candles, nil
}

// PlaceMarketOrder submits a signed market order and returns the
// exchange order id. Size is in base currency.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair string, side model.Side, size float64) (string, error) {
	if c.key == "" || c.secret == "" {
		return "", fmt.Errorf("order %s: no API credentials configured", pair)
	}
	body := map[string]string{
		"type":       "market",
		"side":       sideParam(side),
		"product_id": pair,
		"size":       strconv.FormatFloat(size, 'f', -1, 64),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &resp); err != nil {
		return "", fmt.Errorf("order %s: %w", pair, err)
	}
	log.Printf("[exchange] placed %s %s size=%s id=%s", body["side"], pair, body["size"], resp.ID)
	return resp.ID, nil
}

func sideParam(side model.Side) string {
	if side == model.SideSell {
		return "sell"
	}
	return "buy"
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do performs one request with retries on transient failures. Requests
// are signed whenever credentials are configured.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		retryable, err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		log.Printf("[exchange] %s %s attempt %d failed: %v", method, path, attempt+1, err)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out interface{}) (retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" && c.secret != "" {
		if err := c.sign(req, method, path, body); err != nil {
			return false, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

// sign adds the CB-ACCESS-* authentication headers. The signature is
// base64(HMAC-SHA256(secret, timestamp + method + path + body)) with the
// secret itself base64-decoded first.
func (c *Client) sign(req *http.Request, method, path string, body []byte) error {
	secret, err := base64.StdEncoding.DecodeString(c.secret)
	if err != nil {
		return fmt.Errorf("decode API secret: %w", err)
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("CB-ACCESS-KEY", c.key)
	req.Header.Set("CB-ACCESS-SIGN", signature)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("CB-ACCESS-PASSPHRASE", c.passphrase)
	return nil
}
