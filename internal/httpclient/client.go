package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
)

const (
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries = 3

	// AttemptTimeout bounds every single attempt.
	AttemptTimeout = 10 * time.Second

	// BaseBackoff is doubled for every further retry: 500ms, 1s, 2s.
	BaseBackoff = 500 * time.Millisecond
)

// Header is an outgoing HTTP header. Sensitive headers carry
// credentials: log sites may emit the name but never the value.
type Header struct {
	Name      string
	Value     string
	Sensitive bool
}

// BearerHeader builds an Authorization header for the given token.
func BearerHeader(token string) Header {
	return Header{Name: "Authorization", Value: "Bearer " + token, Sensitive: true}
}

// APIKeyHeader builds an X-API-Key header.
func APIKeyHeader(key string) Header {
	return Header{Name: "X-API-Key", Value: key, Sensitive: true}
}

// Client wraps http.Client with bounded exponential-backoff retries.
// Transport errors and 5xx responses are retried; 4xx responses are
// surfaced immediately. The request body is rebuilt for every attempt
// through the build callback, and a build failure is terminal.
type Client struct {
	http       *http.Client
	logger     arbor.ILogger
	maxRetries int
	backoff    time.Duration
}

func NewClient(logger arbor.ILogger) *Client {
	return &Client{
		http:       &http.Client{},
		logger:     logger,
		maxRetries: MaxRetries,
		backoff:    BaseBackoff,
	}
}

// do runs build+send up to maxRetries+1 times and returns the first
// success (2xx) response body. The caller owns classification of the
// returned error; by the time do fails, retries are exhausted or the
// failure was non-retryable.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), headers []Header) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if attempt > 1 {
			// 500ms * 2^(attempt-2) for the 2nd, 3rd, ... attempt
			delay := c.backoff << (attempt - 2)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := build()
		if err != nil {
			// Cannot rebuild the request - terminal, no retry
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		c.applyHeaders(req, headers)

		attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout)
		resp, err := c.http.Do(req.WithContext(attemptCtx))
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
			c.logger.Warn().
				Str("url", req.URL.String()).
				Int("attempt", attempt).
				Err(err).
				Msg("HTTP request failed")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response from %s: %w", req.URL.Host, readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		lastErr = fmt.Errorf("%s returned status %d: %s", req.URL.Host, resp.StatusCode, truncate(string(body), 256))
		if resp.StatusCode < 500 {
			// 4xx and friends are permanent - do not retry
			return nil, lastErr
		}
		c.logger.Warn().
			Str("url", req.URL.String()).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Msg("HTTP request returned server error")
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// applyHeaders attaches headers, skipping any with invalid tokens.
// Skipped sensitive headers are logged by name only.
func (c *Client) applyHeaders(req *http.Request, headers []Header) {
	for _, h := range headers {
		if h.Name == "" || h.Value == "" {
			continue
		}
		if !validHeaderName(h.Name) || !validHeaderValue(h.Value) {
			c.logger.Warn().
				Str("header", h.Name).
				Msg("Skipping header with invalid characters")
			continue
		}
		req.Header.Set(h.Name, h.Value)
	}
}

// validHeaderName reports whether name is a legal header field token.
func validHeaderName(name string) bool {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		}
		return false
	}
	return name != ""
}

// validHeaderValue rejects control characters that would allow header
// injection.
func validHeaderValue(value string) bool {
	for _, r := range value {
		if r < 0x20 && r != '\t' || r == 0x7f {
			return false
		}
	}
	return true
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
