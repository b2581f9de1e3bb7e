package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://www.alphavantage.co"

var (
	ErrMissingAPIKey = errors.New("alphavantage: api key is required")
	ErrInvalidJSON   = errors.New("alphavantage: response body is not valid JSON")
)

//go:generate mockgen -destination=mock_httpclient_test.go -package=alphavantage_test . HTTPClient

// HTTPClient is the subset of *http.Client the Client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("alphavantage: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the query endpoint. The default http.Client has
// no timeout; requests are bounded only by their context.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QuoteURL builds the GLOBAL_QUOTE request URL for symbol.
func (c *Client) QuoteURL(symbol string) string {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("datatype", "json")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	return c.baseURL + "/query?" + q.Encode()
}

// Query issues one GET to rawURL and returns the whole body once it is known to be
// valid JSON. It never retries.
func (c *Client) Query(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error carries the request URL, api key included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// the body may arrive in many chunks; buffer all of it before decoding
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, truncate(string(body), 64))
	}
	return json.RawMessage(body), nil
}

// GlobalQuote fetches and decodes the latest quote for symbol.
func (c *Client) GlobalQuote(ctx context.Context, symbol string) (QuoteRecord, error) {
	body, err := c.Query(ctx, c.QuoteURL(symbol))
	if err != nil {
		return QuoteRecord{}, err
	}
	return DecodeGlobalQuote(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
