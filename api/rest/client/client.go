// Package client implements the REST client for the benchmark backend using Fiber.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yzsind/dbbench/pkg/types"
)

// SessionHeader carries the console session id on every request.
const SessionHeader = "X-Console-Session"

// Config holds the configuration for the REST client.
type Config struct {
	// BaseURL is the backend root (e.g., "http://localhost:8080").
	BaseURL string

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// SessionID identifies this console to the backend. Generated when empty.
	SessionID string
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8080",
		RequestTimeout: 10 * time.Second,
	}
}

// APIError is a backend operation that answered success=false.
type APIError struct {
	StatusCode int
	Message    string
	ErrorType  string
	Suggestion string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status: %d", e.StatusCode)
	}
	return e.Message
}

// IsAPIError reports whether err is a backend-reported failure.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Client talks to the benchmark backend.
type Client struct {
	config *Config
	agent  *fiber.Client
}

// NewClient creates a new REST client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		agent:  fiber.AcquireClient(),
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *Config {
	return c.config
}

// PushURL derives the websocket URL for path from the base URL.
func (c *Client) PushURL(path string) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// timeout shortens the request timeout to the context deadline.
func (c *Client) timeout(ctx context.Context) time.Duration {
	timeout := c.config.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	target := c.config.BaseURL + path
	var req *fiber.Agent
	switch method {
	case fiber.MethodPost:
		req = c.agent.Post(target)
	case fiber.MethodDelete:
		req = c.agent.Delete(target)
	default:
		req = c.agent.Get(target)
	}
	req.Timeout(c.timeout(ctx))
	req.Set(SessionHeader, c.config.SessionID)
	req.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if body != nil {
		data, err := types.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.Body(data)
		req.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("%s %s failed: %w", method, path, errs[0])
	}
	return statusCode, respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	statusCode, body, err := c.do(ctx, fiber.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if statusCode != fiber.StatusOK {
		return fmt.Errorf("GET %s failed with status: %d", path, statusCode)
	}
	if err := types.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return nil
}

// operation posts to a mutating endpoint and converts success=false into an
// APIError. The decoded response is returned in both cases.
func (c *Client) operation(ctx context.Context, method, path string, body any) (*types.OperationResponse, error) {
	statusCode, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	var resp types.OperationResponse
	if err := types.Unmarshal(respBody, &resp); err != nil {
		if statusCode >= fiber.StatusBadRequest {
			return nil, &APIError{StatusCode: statusCode}
		}
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	if !resp.Success {
		return &resp, &APIError{
			StatusCode: statusCode,
			Message:    firstNonEmpty(resp.Error, resp.Message),
			ErrorType:  resp.ErrorType,
			Suggestion: resp.Suggestion,
		}
	}
	return &resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetBenchmarkConfig fetches the current benchmark configuration.
func (c *Client) GetBenchmarkConfig(ctx context.Context) (*types.BenchmarkConfig, error) {
	var cfg types.BenchmarkConfig
	if err := c.getJSON(ctx, "/api/benchmark/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetCurrentMetrics fetches the current metric snapshot.
func (c *Client) GetCurrentMetrics(ctx context.Context) (*types.MetricSnapshot, error) {
	var snap types.MetricSnapshot
	if err := c.getJSON(ctx, "/api/metrics/current", &snap); err != nil {
		return nil, err
	}
	snap.Status = types.ParseStatus(string(snap.Status))
	return &snap, nil
}

// GetLogs fetches up to limit of the most recent backend log entries.
func (c *Client) GetLogs(ctx context.Context, limit int) ([]types.LogEntry, error) {
	logs := make([]types.LogEntry, 0)
	if err := c.getJSON(ctx, fmt.Sprintf("/api/benchmark/logs?limit=%d", limit), &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// GetTPSHistory fetches up to limit historical throughput points.
func (c *Client) GetTPSHistory(ctx context.Context, limit int) ([]types.TPSPoint, error) {
	points := make([]types.TPSPoint, 0)
	if err := c.getJSON(ctx, fmt.Sprintf("/api/metrics/tps-history?limit=%d", limit), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Start starts a benchmark run.
func (c *Client) Start(ctx context.Context) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/start", nil)
}

// Stop stops the running benchmark.
func (c *Client) Stop(ctx context.Context) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/stop", nil)
}

// Load starts loading the test data set.
func (c *Client) Load(ctx context.Context) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/load", nil)
}

// CancelLoad cancels an in-progress data load.
func (c *Client) CancelLoad(ctx context.Context) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/load/cancel", nil)
}

// Clean drops the test data set.
func (c *Client) Clean(ctx context.Context) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/clean", nil)
}

// SaveConfig validates cfg and stores it on the backend.
func (c *Client) SaveConfig(ctx context.Context, cfg *types.BenchmarkConfig) (*types.OperationResponse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/config", cfg)
}

// TestConnection asks the backend to open a connection with db.
func (c *Client) TestConnection(ctx context.Context, db types.DatabaseSettings) (*types.OperationResponse, error) {
	return c.operation(ctx, fiber.MethodPost, "/api/benchmark/test-connection", types.ConnectionTestRequest{Database: db})
}

// ClearLogs deletes the backend log store.
func (c *Client) ClearLogs(ctx context.Context) error {
	statusCode, _, err := c.do(ctx, fiber.MethodDelete, "/api/benchmark/logs", nil)
	if err != nil {
		return err
	}
	if statusCode >= fiber.StatusBadRequest {
		return &APIError{StatusCode: statusCode}
	}
	return nil
}
