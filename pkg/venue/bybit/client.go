// Package bybit implements venue.Adapter against Bybit's v5 unified REST API
// for USDT linear perpetuals. Unlike Hyperliquid, authentication is HMAC-SHA256
// over a canonical request string rather than EIP-712 wallet signatures.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	mainnetURL = "https://api.bybit.com"
	testnetURL = "https://api-testnet.bybit.com"

	category = "linear" // USDT perpetuals only; spot/inverse are out of scope.

	defaultRecvWindowMs = 5000
)

// Client is a minimal Bybit v5 REST client scoped to the unified-trading
// linear-perpetual surface this adapter needs.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	httpClient *http.Client
	logger     *log.Logger
	clock      func() time.Time

	symbolMu sync.RWMutex
	symbols  map[string]symbolInfo // canonical symbol -> precision/step info
	indexOf  map[string]int        // canonical symbol -> assigned asset index
	symbolOf map[int]string        // reverse of indexOf
	nextIdx  int

	leverageMu sync.Mutex
	lastLev    map[string]int // last leverage set per symbol, to skip redundant calls
}

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a custom logger (defaults to log.Default()).
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecvWindow overrides the recvWindow sent on signed requests, in milliseconds.
func WithRecvWindow(ms int64) ClientOption {
	return func(c *Client) {
		if ms > 0 {
			c.recvWindow = ms
		}
	}
}

// WithClock overrides the time source (for deterministic tests).
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient constructs a Bybit REST client. apiKey/apiSecret are required;
// Bybit has no unauthenticated trading surface worth exposing here.
func NewClient(apiKey, apiSecret string, isTestnet bool, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, fmt.Errorf("bybit: api key and secret are required")
	}

	base := mainnetURL
	if isTestnet {
		base = testnetURL
	}

	client := &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    base,
		recvWindow: defaultRecvWindowMs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Default(),
		clock:      time.Now,
		symbols:    make(map[string]symbolInfo),
		indexOf:    make(map[string]int),
		symbolOf:   make(map[int]string),
		lastLev:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	return client, nil
}

// sign computes the Bybit v5 HMAC-SHA256 signature: timestamp + apiKey +
// recvWindow + payload, where payload is the query string for GET and the
// raw JSON body for POST.
func (c *Client) sign(timestamp int64, payload string) string {
	prehash := strconv.FormatInt(timestamp, 10) + c.apiKey + strconv.FormatInt(c.recvWindow, 10) + payload
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = io.WriteString(mac, prehash)
	return hex.EncodeToString(mac.Sum(nil))
}

type retCodeEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// get issues a signed GET request against the unified-trading API.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	ts := c.clock().UnixMilli()
	query := params.Encode()
	sig := c.sign(ts, query)

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}
	c.setAuthHeaders(req, ts, sig)

	return c.do(req, out)
}

// post issues a signed POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	if body == nil {
		body = map[string]interface{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bybit: encode request: %w", err)
	}

	ts := c.clock().UnixMilli()
	sig := c.sign(ts, string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, ts, sig)

	return c.do(req, out)
}

func (c *Client) setAuthHeaders(req *http.Request, ts int64, sig string) {
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-SIGN", sig)
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.FormatInt(c.recvWindow, 10))
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bybit: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bybit: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("bybit: http status %d: %s", resp.StatusCode, string(raw))
	}

	var env retCodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("bybit: decode envelope: %w", err)
	}
	if env.RetCode != 0 {
		return &APIError{Code: env.RetCode, Message: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("bybit: decode result: %w", err)
	}
	return nil
}

// APIError wraps a non-zero Bybit retCode/retMsg pair.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit: retCode=%d retMsg=%s", e.Code, e.Message)
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
