// Package client provides a typed Go client for the TECP ledger HTTP
// API. Zero external dependencies — uses net/http and encoding/json
// only, so SDK consumers never inherit the server's dependency stack.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// APIError is returned when the ledger responds with a non-2xx status.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tecp ledger %d: %s (%s)", e.Status, e.Detail, e.Code)
}

// LedgerClient is a typed client for a tecp-ledgerd instance.
type LedgerClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a new LedgerClient pointed at baseURL (e.g.
// "http://localhost:8088").
func New(baseURL string, opts ...Option) *LedgerClient {
	c := &LedgerClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures the client.
type Option func(*LedgerClient)

// WithAPIKey sets a bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *LedgerClient) { c.APIKey = key }
}

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *LedgerClient) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient swaps in a caller-supplied *http.Client (e.g. one
// wrapping a custom transport or context-aware retrier).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *LedgerClient) { c.HTTPClient = hc }
}

func (c *LedgerClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var problem ProblemDetail
		if err := json.NewDecoder(resp.Body).Decode(&problem); err == nil {
			return &APIError{Status: resp.StatusCode, Code: problem.Code, Detail: problem.Detail}
		}
		return &APIError{Status: resp.StatusCode, Detail: "unknown error"}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Append calls POST /v1/log/entries, submitting a receipt's leaf hash
// (hex-encoded sha256) for inclusion in the log.
func (c *LedgerClient) Append(req AppendRequest) (*AppendResponse, error) {
	var out AppendResponse
	err := c.do(http.MethodPost, "/v1/log/entries", req, &out)
	return &out, err
}

// Entries calls GET /v1/log/entries with the given offset/limit.
func (c *LedgerClient) Entries(offset, limit uint64) ([]Entry, error) {
	var out []Entry
	path := fmt.Sprintf("/v1/log/entries?offset=%d&limit=%d", offset, limit)
	err := c.do(http.MethodGet, path, nil, &out)
	return out, err
}

// Entry calls GET /v1/log/entries/{seq}.
func (c *LedgerClient) Entry(seq uint64) (*Entry, error) {
	var out Entry
	err := c.do(http.MethodGet, "/v1/log/entries/"+strconv.FormatUint(seq, 10), nil, &out)
	return &out, err
}

// Proof calls GET /v1/log/proof, returning the inclusion proof for seq
// against the log's current tree head.
func (c *LedgerClient) Proof(seq uint64) (*ProofResponse, error) {
	var out ProofResponse
	err := c.do(http.MethodGet, fmt.Sprintf("/v1/log/proof?seq=%d", seq), nil, &out)
	return &out, err
}

// STHCurrent calls GET /v1/log/sth, returning the log's current signed
// tree head.
func (c *LedgerClient) STHCurrent() (*STH, error) {
	var out STH
	err := c.do(http.MethodGet, "/v1/log/sth", nil, &out)
	return &out, err
}

// JWKS calls GET /.well-known/tecp-log-jwks, returning the log's
// published verification keys.
func (c *LedgerClient) JWKS() (*JWKSet, error) {
	var out JWKSet
	err := c.do(http.MethodGet, "/.well-known/tecp-log-jwks", nil, &out)
	return &out, err
}
