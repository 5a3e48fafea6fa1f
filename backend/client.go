// Package backend talks to the ChoreShore REST and RPC endpoints.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every outbound request.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4 * 1024

// ErrBackendRejected is returned when a successful response carries an error
// field in its body.
var ErrBackendRejected = errors.New("backend rejected request")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected HTTP status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	Timeout     time.Duration
}

// Client is a thin JSON client over the backend endpoints.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *log.Logger
}

// New creates a client. A zero timeout selects DefaultTimeout and an empty
// bearer token falls back to the API key.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("missing api key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BearerToken == "" {
		cfg.BearerToken = cfg.APIKey
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: base.String(),
		apiKey:  cfg.APIKey,
		token:   cfg.BearerToken,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request body: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs the request with the client timeout and decodes a JSON
// response into out when out is non-nil. Only 2xx responses are decoded.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, query url.Values, body, out any) error {
	return c.exchange(ctx, timeout, method, path, query, body, out, 0)
}

// exchange is do with an exact expected status. A zero want accepts any 2xx.
func (c *Client) exchange(ctx context.Context, timeout time.Duration, method, path string, query url.Values, body, out any, want int) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unable to make request: %w", err)
	}
	defer resp.Body.Close()

	if !statusAccepted(resp.StatusCode, want) {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to parse JSON response: %w", err)
	}
	return nil
}

func statusAccepted(code, want int) bool {
	if want != 0 {
		return code == want
	}
	return code >= 200 && code <= 299
}
