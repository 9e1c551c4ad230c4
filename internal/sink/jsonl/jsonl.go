// Package jsonl records every console view update to a JSON Lines file.
package jsonl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/pkg/types"
)

// Config holds configuration for the JSONL sink.
type Config struct {
	// FilePath is the output file path.
	FilePath string `yaml:"file_path"`
	// BufferSize is the number of records buffered before writing.
	BufferSize int `yaml:"buffer_size"`
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int `yaml:"max_size"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`
	// IncludeSeries records full series snapshots, not only the newest point.
	IncludeSeries bool `yaml:"include_series"`
}

// DefaultConfig returns the default JSONL sink configuration.
func DefaultConfig() *Config {
	return &Config{
		FilePath:   "dbbench-events.jsonl",
		BufferSize: 50,
		MaxSizeMB:  100,
		MaxBackups: 3,
	}
}

// Record is one line of the output file.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
}

type seriesData struct {
	Series string                `json:"series"`
	Label  string                `json:"label,omitempty"`
	Value  *float64              `json:"value,omitempty"`
	Points []types.ChannelSample `json:"points,omitempty"`
}

type statusData struct {
	Status types.BenchmarkStatus `json:"status"`
	Flags  types.Capabilities    `json:"flags"`
}

// Sink writes JSON lines through a rotating writer.
type Sink struct {
	config *Config
	logger *zap.Logger
	writer *lumberjack.Logger
	buffer [][]byte
	now    func() time.Time
	mu     sync.Mutex
	closed bool
}

// New creates a JSONL sink and makes sure the target directory exists.
func New(config *Config, logger *zap.Logger) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize < 1 {
		config.BufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(config.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建目录失败: %w", err)
		}
	}

	return &Sink{
		config: config,
		logger: logger,
		writer: &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
		},
		buffer: make([][]byte, 0, config.BufferSize),
		now:    time.Now,
	}, nil
}

// NewFactory returns a factory function for creating JSONL sinks.
func NewFactory() sink.Factory {
	return func(config map[string]any, logger *zap.Logger) (sink.Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["file_path"].(string); ok {
				cfg.FilePath = v
			}
			if v, ok := config["buffer_size"].(int); ok {
				cfg.BufferSize = v
			}
			if v, ok := config["max_size"].(int); ok {
				cfg.MaxSizeMB = v
			}
			if v, ok := config["max_backups"].(int); ok {
				cfg.MaxBackups = v
			}
			if v, ok := config["include_series"].(bool); ok {
				cfg.IncludeSeries = v
			}
		}
		return New(cfg, logger)
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "jsonl"
}

func (s *Sink) record(event string, data any) {
	line, err := sonic.Marshal(Record{Timestamp: s.now(), Event: event, Data: data})
	if err != nil {
		s.logger.Warn("序列化记录失败", zap.String("event", event), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buffer = append(s.buffer, append(line, '\n'))
	if len(s.buffer) >= s.config.BufferSize {
		if err := s.flushLocked(); err != nil {
			s.logger.Warn("写入记录失败", zap.Error(err))
		}
	}
}

func (s *Sink) flushLocked() error {
	for _, line := range s.buffer {
		if _, err := s.writer.Write(line); err != nil {
			s.buffer = s.buffer[:0]
			return err
		}
	}
	s.buffer = s.buffer[:0]
	return nil
}

// Flush writes buffered records.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Sink) OnSeriesUpdated(series string, points []types.ChannelSample) {
	d := seriesData{Series: series}
	if s.config.IncludeSeries {
		d.Points = points
	} else if len(points) > 0 {
		last := points[len(points)-1]
		d.Label = last.Label
		d.Value = &last.Value
	}
	s.record("series", d)
}

func (s *Sink) OnStatusChanged(status types.BenchmarkStatus, flags types.Capabilities) {
	s.record("status", statusData{Status: status, Flags: flags})
}

func (s *Sink) OnLogAppended(entry types.LogEntry) {
	s.record("log", entry)
}

func (s *Sink) OnLogHistoryReplaced(entries []types.LogEntry) {
	s.record("log_history", map[string]int{"entries": len(entries)})
}

// OnTransition records lifecycle transitions.
func (s *Sink) OnTransition(t types.Transition) {
	s.record("transition", t)
}

// OnProgress records progress indicator changes.
func (s *Sink) OnProgress(p types.Progress) {
	s.record("progress", p)
}

// OnConnectionChanged records push channel state changes.
func (s *Sink) OnConnectionChanged(state types.ConnectionState) {
	s.record("connection", map[string]types.ConnectionState{"state": state})
}

// OnNotification records notifications.
func (s *Sink) OnNotification(n types.Notification) {
	s.record("notification", n)
}

// Close flushes remaining records and closes the file.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.flushLocked(); err != nil {
		_ = s.writer.Close()
		return fmt.Errorf("写入记录失败: %w", err)
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("关闭文件失败: %w", err)
	}
	return nil
}
