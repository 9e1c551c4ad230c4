package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yzsind/dbbench/pkg/types"
)

// Manager fans events out to every registered sink. It implements Sink and
// all optional interfaces, so it can be handed to the core as a single sink.
type Manager struct {
	registry *Registry
	logger   *zap.Logger
	sinks    []Sink
	mu       sync.RWMutex
}

// NewManager creates a new sink manager.
func NewManager(registry *Registry, logger *zap.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{registry: registry, logger: logger}
}

// Add registers a sink.
func (m *Manager) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// AddFromConfig creates and registers a sink from configuration.
func (m *Manager) AddFromConfig(cfg *Config) error {
	if !cfg.Enabled {
		return nil
	}
	s, err := m.registry.Create(cfg.Type, cfg.Config, m.logger.Named(string(cfg.Type)))
	if err != nil {
		return fmt.Errorf("创建 sink %s 失败: %w", cfg.Type, err)
	}
	m.Add(s)
	return nil
}

// Sinks returns the registered sinks.
func (m *Manager) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

// Count returns the number of registered sinks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Name returns the manager name.
func (m *Manager) Name() string {
	return "manager"
}

// each calls fn for every sink, recovering panics so one broken sink cannot
// take the core down.
func (m *Manager) each(fn func(Sink)) {
	for _, s := range m.Sinks() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("sink panicked", zap.String("sink", s.Name()), zap.Any("panic", r))
				}
			}()
			fn(s)
		}()
	}
}

func (m *Manager) OnSeriesUpdated(series string, points []types.ChannelSample) {
	m.each(func(s Sink) { s.OnSeriesUpdated(series, points) })
}

func (m *Manager) OnStatusChanged(status types.BenchmarkStatus, flags types.Capabilities) {
	m.each(func(s Sink) { s.OnStatusChanged(status, flags) })
}

func (m *Manager) OnLogAppended(entry types.LogEntry) {
	m.each(func(s Sink) { s.OnLogAppended(entry) })
}

func (m *Manager) OnLogHistoryReplaced(entries []types.LogEntry) {
	m.each(func(s Sink) { s.OnLogHistoryReplaced(entries) })
}

func (m *Manager) OnTransition(t types.Transition) {
	m.each(func(s Sink) {
		if ts, ok := s.(TransitionSink); ok {
			ts.OnTransition(t)
		}
	})
}

func (m *Manager) OnProgress(p types.Progress) {
	m.each(func(s Sink) {
		if ps, ok := s.(ProgressSink); ok {
			ps.OnProgress(p)
		}
	})
}

func (m *Manager) OnConnectionChanged(state types.ConnectionState) {
	m.each(func(s Sink) {
		if cs, ok := s.(ConnectionSink); ok {
			cs.OnConnectionChanged(state)
		}
	})
}

func (m *Manager) OnTransaction(tx *types.TransactionMetrics) {
	m.each(func(s Sink) {
		if ps, ok := s.(PanelSink); ok {
			ps.OnTransaction(tx)
		}
	})
}

func (m *Manager) OnHost(host *types.HostMetrics) {
	m.each(func(s Sink) {
		if ps, ok := s.(PanelSink); ok {
			ps.OnHost(host)
		}
	})
}

func (m *Manager) OnDatabase(db *types.DatabaseMetrics) {
	m.each(func(s Sink) {
		if ps, ok := s.(PanelSink); ok {
			ps.OnDatabase(db)
		}
	})
}

func (m *Manager) OnConfig(cfg *types.BenchmarkConfig) {
	m.each(func(s Sink) {
		if ps, ok := s.(PanelSink); ok {
			ps.OnConfig(cfg)
		}
	})
}

func (m *Manager) OnNotification(n types.Notification) {
	m.each(func(s Sink) {
		if ns, ok := s.(NotificationSink); ok {
			ns.OnNotification(n)
		}
	})
}

// Close closes all sinks.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
