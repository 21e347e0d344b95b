package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"strava-club-sync/internal/metrics"
)

const (
	defaultBaseURL  = "https://www.strava.com/api/v3"
	defaultTokenURL = "https://www.strava.com/oauth/token"
	requestTimeout  = 10 * time.Second
)

// Client is a Strava API client. It performs single-attempt requests:
// failures are classified and surfaced to the caller, which defers the work
// to the next scheduled cycle rather than retrying in-call.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	logger       *slog.Logger
	rateLimits   *RateLimitTracker
	baseURL      string
	tokenURL     string
}

// NewClient creates a new Strava API client
func NewClient(clientID, clientSecret string, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: requestTimeout},
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		rateLimits:   NewRateLimitTracker(),
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
	}
}

// SetBaseURL overrides the API base URL (for testing)
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetTokenURL overrides the token endpoint URL (for testing)
func (c *Client) SetTokenURL(u string) {
	c.tokenURL = u
}

// TokenResponse represents the response from a token refresh
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int    `json:"expires_in"`
}

// HTTPError is a non-200 response from the Strava API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("strava api returned status %d: %s", e.StatusCode, e.Body)
}

// IsTooManyRequests reports whether err is a 429 response
func IsTooManyRequests(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports whether err is a 401 response
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsTimeout reports whether err is a request timeout or deadline expiry
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RefreshToken exchanges a refresh token for a new credential triple
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.recordRequest(metrics.OpRefreshToken, 0, duration)
		c.logger.Error("token refresh failed", "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	c.recordRequest(metrics.OpRefreshToken, resp.StatusCode, duration)
	c.logger.Info("token_refresh", "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tokenResp, nil
}

// doRequest performs a single authenticated GET against the API. No retries
// and no sleeps: a 429 or timeout comes back to the caller as-is.
func (c *Client) doRequest(ctx context.Context, operation, path, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.recordRequest(operation, 0, duration)
		c.logger.Error("request failed", "operation", operation, "path", path, "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.parseRateLimitHeaders(resp.Header)
	c.recordRequest(operation, resp.StatusCode, duration)
	c.logger.Info("strava_api_request", "operation", operation, "path", path, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return bodyBytes, nil
}

// parseRateLimitHeaders extracts rate limit information from response headers
func (c *Client) parseRateLimitHeaders(headers http.Header) {
	limitHeader := headers.Get("X-RateLimit-Limit")
	usageHeader := headers.Get("X-RateLimit-Usage")

	if limitHeader == "" || usageHeader == "" {
		return
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")

	if len(limits) == 2 && len(usages) == 2 {
		limit15, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
		limitDaily, _ := strconv.Atoi(strings.TrimSpace(limits[1]))
		usage15, _ := strconv.Atoi(strings.TrimSpace(usages[0]))
		usageDaily, _ := strconv.Atoi(strings.TrimSpace(usages[1]))

		c.rateLimits.Update(limit15, usage15, limitDaily, usageDaily)

		c.logger.Debug("rate_limit",
			"limit_15min", limit15,
			"usage_15min", usage15,
			"limit_daily", limitDaily,
			"usage_daily", usageDaily,
		)
	}
}

func (c *Client) recordRequest(operation string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	metrics.StravaAPIRequestsTotal.WithLabelValues(operation, code).Inc()
	metrics.StravaAPIRequestDuration.WithLabelValues(operation, code).Observe(duration.Seconds())
}

// GetRateLimitStatus returns the current rate limit status
func (c *Client) GetRateLimitStatus() RateLimitStatus {
	return c.rateLimits.Status()
}
