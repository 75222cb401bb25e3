package flow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPITimeout = 30 * time.Second

// maxAPIResponseBytes caps how much of a response body a step may bind
const maxAPIResponseBytes = 1 << 20

// HTTPAPICaller is the default APICaller backed by net/http
type HTTPAPICaller struct {
	client *http.Client
}

// NewHTTPAPICaller creates a caller with the given timeout; zero means
// the 30s default.
func NewHTTPAPICaller(timeout time.Duration) *HTTPAPICaller {
	if timeout == 0 {
		timeout = defaultAPITimeout
	}
	return &HTTPAPICaller{
		client: &http.Client{Timeout: timeout},
	}
}

// Call performs the request and returns the response body as a string.
// Non-2xx statuses are errors so flow execution fails fast.
func (c *HTTPAPICaller) Call(ctx context.Context, method, url string, headers map[string]string, body string) (string, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return string(data), nil
}
