// Package backend is a client for the fleet backend's REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxRetries is the number of retries for retryable failures.
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff.
	DefaultBaseRetryDelay = 500 * time.Millisecond
	// DefaultRequestsPerMinute caps the request rate towards the backend.
	DefaultRequestsPerMinute = 120
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	MaxRetries        int
	BaseRetryDelay    time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to the fleet backend. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *slog.Logger
	maxRetries     int
	baseRetryDelay time.Duration

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the backend at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	rps := float64(opts.RequestsPerMinute) / 60.0
	burst := max(5, opts.RequestsPerMinute/5)
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     hc,
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		logger:         opts.Logger,
		maxRetries:     opts.MaxRetries,
		baseRetryDelay: opts.BaseRetryDelay,
		token:          opts.Token,
	}, nil
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &s); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if s.Token == "" {
		return nil, errors.New("login: empty token in response")
	}
	c.SetToken(s.Token)
	c.logger.Info("backend login", "email", s.Email, "role", s.Role)
	return &s, nil
}

// ListMissions returns every mission. Both paged ({"content": [...]}) and
// bare array responses are accepted.
func (c *Client) ListMissions(ctx context.Context) ([]Mission, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/missions", nil, &raw); err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return decodeMissionList(raw)
}

func decodeMissionList(raw json.RawMessage) ([]Mission, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var missions []Mission
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &missions); err != nil {
			return nil, fmt.Errorf("decode missions: %w", err)
		}
		return missions, nil
	}
	var page struct {
		Content []Mission `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode mission page: %w", err)
	}
	return page.Content, nil
}

// GetMission fetches one mission.
func (c *Client) GetMission(ctx context.Context, id string) (*Mission, error) {
	var m Mission
	if err := c.do(ctx, http.MethodGet, "/api/missions/"+url.PathEscape(id), nil, &m); err != nil {
		return nil, fmt.Errorf("get mission %s: %w", id, err)
	}
	return &m, nil
}

// Control applies a state transition to a mission and returns the updated mission.
func (c *Client) Control(ctx context.Context, id string, action Action) (*Mission, error) {
	var m Mission
	path := "/api/missions/" + url.PathEscape(id) + "/" + string(action)
	if err := c.do(ctx, http.MethodPost, path, nil, &m); err != nil {
		return nil, fmt.Errorf("%s mission %s: %w", action, id, err)
	}
	c.logger.Info("mission control", "mission_id", id, "action", action, "status", m.Status)
	return &m, nil
}

// Simulate asks the backend to run its own waypoint simulation for a mission.
func (c *Client) Simulate(ctx context.Context, id string, waypointCount int) (string, error) {
	path := "/api/missions/" + url.PathEscape(id) + "/simulate?waypointCount=" + strconv.Itoa(waypointCount)
	var msg string
	if err := c.do(ctx, http.MethodPost, path, nil, &msg); err != nil {
		return "", fmt.Errorf("simulate mission %s: %w", id, err)
	}
	return msg, nil
}

// FlightPath fetches a mission's planned path with its waypoints decoded.
func (c *Client) FlightPath(ctx context.Context, missionID string) (*FlightPath, error) {
	var fp FlightPath
	if err := c.do(ctx, http.MethodGet, "/api/flight-paths/mission/"+url.PathEscape(missionID), nil, &fp); err != nil {
		return nil, fmt.Errorf("flight path %s: %w", missionID, err)
	}
	if err := fp.decodeWaypoints(); err != nil {
		return nil, err
	}
	return &fp, nil
}

// do sends a request with rate limiting and retries, decoding the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay
			c.logger.Warn("retrying backend request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", backoff,
				"request_id", requestID,
				"err", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		err := c.send(ctx, method, path, requestID, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(method, err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryable reports whether a failed request may be sent again. Only reads are
// retried on server or transport errors; a POST that reached the backend may
// already have applied, so it is retried only when rate limited.
func retryable(method string, err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable {
		return false
	}
	return method == http.MethodGet || apiErr.StatusCode == http.StatusTooManyRequests
}

func (c *Client) send(ctx context.Context, method, path, requestID string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", "err", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Retryable: statusRetryable(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
			apiErr.Message = eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	// Plain-text endpoints (simulate) answer with a bare string.
	if s, ok := out.(*string); ok && !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		*s = string(respBody)
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
