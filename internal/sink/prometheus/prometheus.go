// Package prometheus exposes the console views as Prometheus gauges for
// scraping.
package prometheus

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/pkg/types"
)

// Config holds configuration for the Prometheus sink.
type Config struct {
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
	// ConstLabels are added to all metrics.
	ConstLabels map[string]string `yaml:"labels,omitempty"`
}

// DefaultConfig returns the default Prometheus sink configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespace:   "dbbench",
		ConstLabels: make(map[string]string),
	}
}

var knownStatuses = []types.BenchmarkStatus{
	types.StatusIdle,
	types.StatusLoading,
	types.StatusLoaded,
	types.StatusRunning,
	types.StatusStopping,
	types.StatusStopped,
	types.StatusError,
	types.StatusCancelled,
	types.StatusInitialized,
	types.StatusInitializing,
	types.StatusShutdown,
}

var knownConnStates = []types.ConnectionState{types.ConnConnecting, types.ConnOpen, types.ConnClosed}

// Sink keeps gauges on a private registry.
type Sink struct {
	config   *Config
	registry *prometheus.Registry

	series       *prometheus.GaugeVec
	status       *prometheus.GaugeVec
	capability   *prometheus.GaugeVec
	connection   *prometheus.GaugeVec
	progress     prometheus.Gauge
	logs         *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	txTotal      *prometheus.GaugeVec
	txLatency    prometheus.Gauge
	notification *prometheus.CounterVec

	mu         sync.Mutex
	lastStatus types.BenchmarkStatus
}

// New creates a Prometheus sink with its metrics registered.
func New(config *Config) *Sink {
	if config == nil {
		config = DefaultConfig()
	}
	labels := prometheus.Labels(config.ConstLabels)
	ns := config.Namespace

	s := &Sink{
		config:   config,
		registry: prometheus.NewRegistry(),
		series: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "series_latest", Help: "Newest value of each chart series", ConstLabels: labels,
		}, []string{"series"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "status", Help: "Current benchmark status (1 for the active status)", ConstLabels: labels,
		}, []string{"status"}),
		capability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "capability", Help: "Control affordances derived from the status", ConstLabels: labels,
		}, []string{"action"}),
		connection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "push_connection", Help: "Push channel state (1 for the active state)", ConstLabels: labels,
		}, []string{"state"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "load_progress_percent", Help: "Data load progress, -1 when hidden", ConstLabels: labels,
		}),
		logs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "log_entries_total", Help: "Log entries appended to the live tail", ConstLabels: labels,
		}, []string{"level"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "transitions_total", Help: "Classified status transitions", ConstLabels: labels,
		}, []string{"event"}),
		txTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "transactions", Help: "Transaction totals of the current run", ConstLabels: labels,
		}, []string{"result"}),
		txLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "transaction_avg_latency_ms", Help: "Average transaction latency", ConstLabels: labels,
		}),
		notification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "notifications_total", Help: "User-facing notifications raised", ConstLabels: labels,
		}, []string{"kind"}),
	}

	s.registry.MustRegister(
		s.series, s.status, s.capability, s.connection, s.progress,
		s.logs, s.transitions, s.txTotal, s.txLatency, s.notification,
	)
	s.progress.Set(-1)
	return s
}

// NewFactory returns a factory function for creating Prometheus sinks.
func NewFactory() sink.Factory {
	return func(config map[string]any, _ *zap.Logger) (sink.Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["namespace"].(string); ok {
				cfg.Namespace = v
			}
			if v, ok := config["labels"].(map[string]any); ok {
				for k, val := range v {
					if s, ok := val.(string); ok {
						cfg.ConstLabels[k] = s
					}
				}
			}
		}
		return New(cfg), nil
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "prometheus"
}

// Registry returns the registry holding the sink's metrics.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns an HTTP handler serving the metrics in text exposition
// format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Sink) OnSeriesUpdated(series string, points []types.ChannelSample) {
	if len(points) == 0 {
		s.series.DeleteLabelValues(series)
		return
	}
	s.series.WithLabelValues(series).Set(points[len(points)-1].Value)
}

func (s *Sink) OnStatusChanged(status types.BenchmarkStatus, flags types.Capabilities) {
	s.mu.Lock()
	prev := s.lastStatus
	s.lastStatus = status
	s.mu.Unlock()

	if prev != "" && prev != status {
		s.status.WithLabelValues(string(prev)).Set(0)
	}
	for _, known := range knownStatuses {
		if known != status {
			s.status.WithLabelValues(string(known)).Set(0)
		}
	}
	s.status.WithLabelValues(string(status)).Set(1)

	s.capability.WithLabelValues("start").Set(boolGauge(flags.CanStart))
	s.capability.WithLabelValues("stop").Set(boolGauge(flags.CanStop))
	s.capability.WithLabelValues("load").Set(boolGauge(flags.CanLoad))
	s.capability.WithLabelValues("clean").Set(boolGauge(flags.CanClean))
	s.capability.WithLabelValues("edit_config").Set(boolGauge(flags.CanEditConfig))
}

func (s *Sink) OnLogAppended(entry types.LogEntry) {
	s.logs.WithLabelValues(string(entry.Level)).Inc()
}

func (s *Sink) OnLogHistoryReplaced([]types.LogEntry) {}

// OnTransition counts classified transitions.
func (s *Sink) OnTransition(t types.Transition) {
	s.transitions.WithLabelValues(string(t.Event)).Inc()
}

// OnProgress tracks the load progress gauge.
func (s *Sink) OnProgress(p types.Progress) {
	if !p.Active {
		s.progress.Set(-1)
		return
	}
	s.progress.Set(float64(p.Percent))
}

// OnConnectionChanged marks the active push channel state.
func (s *Sink) OnConnectionChanged(state types.ConnectionState) {
	for _, known := range knownConnStates {
		s.connection.WithLabelValues(string(known)).Set(boolGauge(known == state))
	}
}

// OnTransaction publishes the run totals.
func (s *Sink) OnTransaction(tx *types.TransactionMetrics) {
	if tx == nil {
		return
	}
	s.txTotal.WithLabelValues("total").Set(float64(tx.TotalTransactions))
	s.txTotal.WithLabelValues("success").Set(float64(tx.TotalSuccess))
	s.txTotal.WithLabelValues("failure").Set(float64(tx.TotalFailure))
	s.txLatency.Set(tx.AvgLatencyMs)
}

func (s *Sink) OnHost(*types.HostMetrics)         {}
func (s *Sink) OnDatabase(*types.DatabaseMetrics) {}
func (s *Sink) OnConfig(*types.BenchmarkConfig)   {}

// OnNotification counts notifications by kind.
func (s *Sink) OnNotification(n types.Notification) {
	s.notification.WithLabelValues(string(n.Kind)).Inc()
}

// Close unregisters nothing; the registry is private to the sink.
func (s *Sink) Close(context.Context) error {
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
