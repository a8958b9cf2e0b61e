package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/obentoo/ebumper/internal/common/version"
)

// Error variables for HTTP client errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
	// ErrUnexpectedStatus is returned by Fetch for non-2xx responses
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// maxBodySize caps how much of an upstream response is read
const maxBodySize = 8 << 20

// envVarPattern matches ${VAR_NAME} syntax for environment variable substitution
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// BaseDelay is the initial delay before first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay caps backoff and Retry-After (default: 4s)
	MaxDelay time.Duration
	// Timeout is the timeout for each individual request (default: 30s)
	Timeout time.Duration
}

// DefaultRetryConfig returns exponential backoff of 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// RetryableHTTPClient wraps an HTTP client with retry logic. Network errors,
// 5xx and 429 responses are retried with exponential backoff.
type RetryableHTTPClient struct {
	client *http.Client
	config RetryConfig
	// wait sleeps between attempts; replaced in tests
	wait           func(ctx context.Context, d time.Duration) error
	defaultHeaders map[string]string
	githubToken    string
}

// NewRetryableHTTPClient creates a client with DefaultRetryConfig.
func NewRetryableHTTPClient() *RetryableHTTPClient {
	return NewRetryableHTTPClientWithConfig(DefaultRetryConfig())
}

// NewRetryableHTTPClientWithConfig creates a client with a custom retry configuration.
func NewRetryableHTTPClientWithConfig(config RetryConfig) *RetryableHTTPClient {
	return &RetryableHTTPClient{
		client:         &http.Client{Timeout: config.Timeout},
		config:         config,
		wait:           sleepContext,
		defaultHeaders: map[string]string{"User-Agent": version.UserAgent()},
	}
}

// SetHTTPClient sets a custom underlying HTTP client (useful for testing).
func (c *RetryableHTTPClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

// HTTPClient returns the underlying client, shared with the GitHub source.
func (c *RetryableHTTPClient) HTTPClient() *http.Client {
	return c.client
}

// SetDelayFunc replaces the backoff sleep; fn receives each delay.
func (c *RetryableHTTPClient) SetDelayFunc(fn func(time.Duration)) {
	c.wait = func(ctx context.Context, d time.Duration) error {
		fn(d)
		return ctx.Err()
	}
}

// SetGitHubToken sets the token sent to api.github.com.
func (c *RetryableHTTPClient) SetGitHubToken(token string) {
	c.githubToken = token
}

// GitHubToken returns the configured GitHub token.
func (c *RetryableHTTPClient) GitHubToken() string {
	return c.githubToken
}

// SetDefaultHeader sets a header applied to every request.
func (c *RetryableHTTPClient) SetDefaultHeader(key, value string) {
	c.defaultHeaders[key] = value
}

// Config returns the current retry configuration.
func (c *RetryableHTTPClient) Config() RetryConfig {
	return c.config
}

// Do executes req with retries. The returned response, if any, is the
// last one received.
func (c *RetryableHTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastResp *http.Response
	var retryAfter time.Duration

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			if retryAfter > delay {
				delay = min(retryAfter, c.config.MaxDelay)
			}
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if isTimeoutError(err) {
				lastErr = fmt.Errorf("%w: %v", ErrRequestTimeout, err)
			}
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
		lastResp = resp
	}

	return lastResp, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Get performs a GET with default headers, the GitHub token for GitHub API
// URLs, and custom headers, in that order of precedence (last wins).
// Header values expand ${VAR_NAME} from the environment.
func (c *RetryableHTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req, url, headers)
	return c.Do(ctx, req)
}

// Fetch GETs url and returns the body of a 2xx response.
func (c *RetryableHTTPClient) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return content, nil
}

// calculateDelay returns baseDelay * 2^(attempt-1), capped at MaxDelay.
func (c *RetryableHTTPClient) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := c.config.BaseDelay * time.Duration(1<<(attempt-1))
	if delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	return delay
}

func (c *RetryableHTTPClient) applyHeaders(req *http.Request, url string, custom map[string]string) {
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, SubstituteEnvVars(value))
	}
	if c.githubToken != "" && isGitHubAPIURL(url) {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}
	for key, value := range custom {
		req.Header.Set(key, SubstituteEnvVars(value))
	}
}

func shouldRetry(statusCode int) bool {
	return statusCode >= 500 && statusCode < 600 || statusCode == http.StatusTooManyRequests
}

// parseRetryAfter understands the delay-seconds form only
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SubstituteEnvVars replaces ${VAR_NAME} with the environment value, or ""
// when unset.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func isGitHubAPIURL(url string) bool {
	return strings.HasPrefix(url, "https://api.github.com/") ||
		strings.HasPrefix(url, "http://api.github.com/")
}
