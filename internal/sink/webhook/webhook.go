// Package webhook posts lifecycle events of the benchmark console to an
// HTTP endpoint.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/pkg/types"
)

// Config holds configuration for the webhook sink.
type Config struct {
	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`
	// Method is the HTTP method (default: POST).
	Method string `yaml:"method"`
	// Headers are additional HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`
	// BatchSize is the number of events batched before sending.
	BatchSize int `yaml:"batch_size"`
	// FlushInterval sends a partial batch after this delay.
	FlushInterval time.Duration `yaml:"flush_interval"`
	// RetryAttempts is the number of retry attempts on failure.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelay is the delay between retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `yaml:"timeout"`
	// IncludeLogs forwards error-level log entries as well.
	IncludeLogs bool `yaml:"include_logs"`
}

// DefaultConfig returns the default webhook sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Method:        http.MethodPost,
		Headers:       make(map[string]string),
		BatchSize:     10,
		FlushInterval: 5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Timeout:       10 * time.Second,
	}
}

// Event is one entry of a webhook batch.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
}

// BatchPayload is the request body posted to the endpoint.
type BatchPayload struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

const queueSize = 256

// Sink batches events and posts them from a background goroutine.
type Sink struct {
	config *Config
	client *fasthttp.Client
	logger *zap.Logger

	queue   chan Event
	stopped chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	sent    atomic.Int64
	now     func() time.Time
}

// New creates a webhook sink and starts its sender.
func New(config *Config, logger *zap.Logger) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.URL == "" {
		return nil, fmt.Errorf("webhook URL 不能为空")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sink{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
		logger:  logger,
		queue:   make(chan Event, queueSize),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
	go s.loop()
	return s, nil
}

// NewFactory returns a factory function for creating webhook sinks.
func NewFactory() sink.Factory {
	return func(config map[string]any, logger *zap.Logger) (sink.Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["url"].(string); ok {
				cfg.URL = v
			}
			if v, ok := config["method"].(string); ok {
				cfg.Method = v
			}
			if v, ok := config["headers"].(map[string]any); ok {
				for k, val := range v {
					if s, ok := val.(string); ok {
						cfg.Headers[k] = s
					}
				}
			}
			if v, ok := config["batch_size"].(int); ok {
				cfg.BatchSize = v
			}
			if v, ok := config["retry_attempts"].(int); ok {
				cfg.RetryAttempts = v
			}
			if v, ok := config["include_logs"].(bool); ok {
				cfg.IncludeLogs = v
			}
			for key, dst := range map[string]*time.Duration{
				"flush_interval": &cfg.FlushInterval,
				"retry_delay":    &cfg.RetryDelay,
				"timeout":        &cfg.Timeout,
			} {
				if v, ok := config[key].(string); ok {
					if d, err := time.ParseDuration(v); err == nil {
						*dst = d
					}
				}
			}
		}
		return New(cfg, logger)
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "webhook"
}

// Sent returns the number of events delivered.
func (s *Sink) Sent() int64 {
	return s.sent.Load()
}

// Dropped returns the number of events discarded because the queue was full
// or delivery failed.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) enqueue(kind string, data any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- Event{Timestamp: s.now(), Type: kind, Data: data}:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) loop() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, s.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.budget())
		if err := s.sendWithRetry(ctx, batch); err != nil {
			s.dropped.Add(int64(len(batch)))
			s.logger.Warn("发送 webhook 失败", zap.Int("events", len(batch)), zap.Error(err))
		} else {
			s.sent.Add(int64(len(batch)))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= s.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sink) budget() time.Duration {
	attempts := time.Duration(s.config.RetryAttempts + 1)
	return attempts*s.config.Timeout + attempts*attempts*s.config.RetryDelay
}

func (s *Sink) sendWithRetry(ctx context.Context, events []Event) error {
	body, err := sonic.Marshal(BatchPayload{Events: events, Count: len(events)})
	if err != nil {
		return fmt.Errorf("序列化 webhook 负载失败: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if lastErr = s.send(body); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("重试 %d 次后仍失败: %w", s.config.RetryAttempts+1, lastErr)
}

func (s *Sink) send(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.config.URL)
	req.Header.SetMethod(s.config.Method)
	req.Header.SetContentType("application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := s.client.DoTimeout(req, resp, s.config.Timeout); err != nil {
		return fmt.Errorf("请求 webhook 失败: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d: %s", code, string(resp.Body()))
	}
	return nil
}

func (s *Sink) OnSeriesUpdated(string, []types.ChannelSample) {}

func (s *Sink) OnStatusChanged(types.BenchmarkStatus, types.Capabilities) {}

func (s *Sink) OnLogAppended(entry types.LogEntry) {
	if s.config.IncludeLogs && entry.Level == types.LevelError {
		s.enqueue("log", entry)
	}
}

func (s *Sink) OnLogHistoryReplaced([]types.LogEntry) {}

// OnTransition forwards classified status transitions.
func (s *Sink) OnTransition(t types.Transition) {
	s.enqueue("transition", t)
}

// OnNotification forwards user-facing notifications.
func (s *Sink) OnNotification(n types.Notification) {
	s.enqueue("notification", n)
}

// Close stops accepting events and waits for the final batch to be sent.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
