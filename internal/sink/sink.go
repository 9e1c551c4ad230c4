package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yzsind/dbbench/pkg/types"
)

// Sink receives the views published by the synchronization core. Callbacks
// must not block for long; they run on the goroutine that produced the update.
type Sink interface {
	// Name 返回 sink 名称。
	Name() string

	// OnSeriesUpdated is fired after every series mutation.
	OnSeriesUpdated(series string, points []types.ChannelSample)

	// OnStatusChanged is fired after every status update.
	OnStatusChanged(status types.BenchmarkStatus, flags types.Capabilities)

	// OnLogAppended is fired for every entry added to the live tail.
	OnLogAppended(entry types.LogEntry)

	// OnLogHistoryReplaced is fired when the log history is replaced or cleared.
	OnLogHistoryReplaced(entries []types.LogEntry)

	// Close 关闭 sink 并释放资源。
	Close(ctx context.Context) error
}

// TransitionSink receives classified status transitions.
type TransitionSink interface {
	OnTransition(t types.Transition)
}

// ProgressSink receives data-load progress indicator changes.
type ProgressSink interface {
	OnProgress(p types.Progress)
}

// ConnectionSink receives push channel state changes.
type ConnectionSink interface {
	OnConnectionChanged(state types.ConnectionState)
}

// PanelSink receives the latest value panels.
type PanelSink interface {
	OnTransaction(tx *types.TransactionMetrics)
	OnHost(host *types.HostMetrics)
	OnDatabase(db *types.DatabaseMetrics)
	OnConfig(cfg *types.BenchmarkConfig)
}

// NotificationSink receives transient user-facing notifications.
type NotificationSink interface {
	OnNotification(n types.Notification)
}

// Nop implements Sink with no-op callbacks. Embed it to implement only the
// callbacks a sink cares about.
type Nop struct{}

func (Nop) OnSeriesUpdated(string, []types.ChannelSample)           {}
func (Nop) OnStatusChanged(types.BenchmarkStatus, types.Capabilities) {}
func (Nop) OnLogAppended(types.LogEntry)                            {}
func (Nop) OnLogHistoryReplaced([]types.LogEntry)                   {}
func (Nop) Close(context.Context) error                             { return nil }

// Type 定义 sink 类型。
type Type string

const (
	// TypeConsole 输出到终端。
	TypeConsole Type = "console"
	// TypeJSONL 以 JSON Lines 写入文件。
	TypeJSONL Type = "jsonl"
	// TypePrometheus 导出为 Prometheus 指标。
	TypePrometheus Type = "prometheus"
	// TypeWebhook 发送到 Webhook URL。
	TypeWebhook Type = "webhook"
)

// Config 保存 sink 的配置。
type Config struct {
	Type    Type           `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Factory 创建特定类型的 sink。
type Factory func(config map[string]any, logger *zap.Logger) (Sink, error)

// Registry 管理 sink 的注册和创建。
type Registry struct {
	factories map[Type]Factory
	mu        sync.RWMutex
}

// NewRegistry 创建一个新的 sink 注册表。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// Register 为指定类型注册工厂。
func (r *Registry) Register(t Type, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[t]; exists {
		return fmt.Errorf("sink 类型已注册: %s", t)
	}
	r.factories[t] = factory
	return nil
}

// Create 创建指定类型的 sink。
func (r *Registry) Create(t Type, config map[string]any, logger *zap.Logger) (Sink, error) {
	r.mu.RLock()
	factory, exists := r.factories[t]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("未知的 sink 类型: %s", t)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return factory(config, logger)
}

// HasType 检查类型是否已注册。
func (r *Registry) HasType(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[t]
	return ok
}

// ListTypes 返回所有已注册的类型，按名称排序。
func (r *Registry) ListTypes() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
