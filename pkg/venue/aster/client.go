// Package aster implements venue.Adapter against Aster DEX's perp API.
// Authentication is EIP-712 typed-data signing over an ECDSA wallet key,
// carried in request headers rather than Hyperliquid's msgpack action
// envelope — closer in spirit to standard wallet-signed dApp requests.
package aster

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	mainnetURL = "https://api.aster.finance"
	testnetURL = "https://testnet-api.aster.finance"
)

// Client is a minimal Aster REST client covering the perp-trading surface
// this adapter needs.
type Client struct {
	privateKey *ecdsa.PrivateKey
	address    string
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	clock      func() time.Time

	symbolMu sync.RWMutex
	precision map[string]symbolPrecision // canonical symbol -> precision
	indexOf   map[string]int
	symbolOf  map[int]string
	nextIdx   int
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

// WithClock overrides the time source (for deterministic tests).
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithAddress overrides the derived wallet address, mirroring Hyperliquid's
// agent-wallet-vs-main-address split for sub-account/agent-key setups.
func WithAddress(address string) ClientOption {
	return func(c *Client) {
		if address != "" {
			c.address = strings.ToLower(address)
		}
	}
}

// NewClient constructs an Aster REST client from a hex-encoded ECDSA private key.
func NewClient(privateKeyHex string, isTestnet bool, opts ...ClientOption) (*Client, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("aster: empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("aster: decode private key: %w", err)
	}

	base := mainnetURL
	if isTestnet {
		base = testnetURL
	}

	client := &Client{
		privateKey: key,
		address:    strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Default(),
		clock:      time.Now,
		precision:  make(map[string]symbolPrecision),
		indexOf:    make(map[string]int),
		symbolOf:   make(map[int]string),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	return client, nil
}

// Address returns the signing wallet's address.
func (c *Client) Address() string { return c.address }

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// get issues a signed GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.signedRequest(ctx, http.MethodGet, path, valuesToMap(params), out)
}

// post issues a signed POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	return c.signedRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) signedRequest(ctx context.Context, method, path string, params map[string]interface{}, out interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	signature, nonce, err := c.generateSignature(params)
	if err != nil {
		return fmt.Errorf("aster: sign request: %w", err)
	}

	var req *http.Request
	u := c.baseURL + path
	if method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		if encoded := q.Encode(); encoded != "" {
			u += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	} else {
		payload, marshalErr := json.Marshal(params)
		if marshalErr != nil {
			return fmt.Errorf("aster: encode request: %w", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("aster: build request: %w", err)
	}

	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Nonce", fmt.Sprintf("%d", nonce))
	req.Header.Set("X-Address", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aster: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aster: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("aster: http status %d: %s", resp.StatusCode, string(raw))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("aster: decode envelope: %w", err)
	}
	if env.Error != "" {
		return &APIError{Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("aster: decode data: %w", err)
	}
	return nil
}

// urlValuesOf is a small convenience constructor for single-key query params.
func urlValuesOf(key, value string) url.Values {
	return url.Values{key: {value}}
}

func valuesToMap(v url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

// APIError wraps Aster's {"error": "..."} response shape.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aster: %s", e.Message)
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
