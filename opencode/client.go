package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to an OpenCode-compatible agent server.
type Client struct {
	baseURL    string
	token      string
	directory  *string
	httpClient *http.Client // request/response calls, bounded timeout
	sseClient  *http.Client // streaming calls, no overall timeout
	logger     *Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for request/response calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) ClientOption {
	return func(client *Client) {
		client.token = token
	}
}

// WithDirectory sets the workspace directory query parameter attached to
// every request.
func WithDirectory(dir string) ClientOption {
	return func(client *Client) {
		client.directory = &dir
	}
}

// WithTimeout sets the timeout for request/response calls. Streaming calls
// are never subject to it.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if client.httpClient == nil {
			client.httpClient = &http.Client{}
		}
		client.httpClient.Timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(l *Logger) ClientOption {
	return func(client *Client) {
		if l != nil {
			client.logger = l
		}
	}
}

// NewClient creates a client for the server at baseURL. The URL may omit the
// scheme; "http://" is assumed, and a trailing slash is stripped.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: NormalizeBaseURL(baseURL),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sseClient: &http.Client{},
		logger:    NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NormalizeBaseURL ensures the URL has a scheme and no trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimSuffix(raw, "/")
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildURL builds a request URL with the directory parameter and any extra
// query parameters.
func (c *Client) buildURL(path string, queryParams ...map[string]string) string {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return c.baseURL + path
	}

	q := u.Query()
	if c.directory != nil {
		q.Set("directory", *c.directory)
	}
	for _, params := range queryParams {
		for k, v := range params {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// authorize attaches the bearer token, if one is configured.
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doRequest performs an HTTP request and decodes the JSON response into
// result (which may be nil to discard the body).
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	reqURL := c.buildURL(path)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// openStream performs a streaming request and returns the response with its
// body left open. The caller owns the body.
func (c *Client) openStream(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.sseClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}

// readStream pumps decoded events from an open stream body into a channel
// until the body ends, the [DONE] sentinel arrives, or the context is
// cancelled. It closes both channels when finished.
func (c *Client) readStream(ctx context.Context, respBody io.ReadCloser, eventCh chan<- *StreamEvent, errCh chan<- error) {
	defer close(eventCh)
	defer close(errCh)
	defer respBody.Close()

	parser := NewFrameParser()
	buf := make([]byte, 4096)

	for {
		n, err := respBody.Read(buf)
		if n > 0 {
			for _, raw := range parser.Feed(buf[:n]) {
				select {
				case <-ctx.Done():
					return
				case eventCh <- DecodeEvent(raw):
				}
			}
			if parser.Done() {
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				errCh <- err
			}
			return
		}
	}
}
