// Package console provides a terminal sink for the benchmark console.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/pkg/types"
)

// Config holds configuration for the console sink.
type Config struct {
	// ColorOutput enables colored output.
	ColorOutput bool `yaml:"color_output"`
	// ShowSeries prints the newest throughput point on every update.
	ShowSeries bool `yaml:"show_series"`
	// ShowPanels prints the transaction, host and database panels.
	ShowPanels bool `yaml:"show_panels"`
	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns the default console sink configuration.
func DefaultConfig() *Config {
	return &Config{
		ColorOutput: true,
		ShowSeries:  true,
		ShowPanels:  false,
		Writer:      os.Stdout,
	}
}

// Sink writes console events as text lines.
type Sink struct {
	sink.Nop
	config *Config
	writer io.Writer

	lastStatus types.BenchmarkStatus
	mu         sync.Mutex
}

// New creates a new console sink.
func New(config *Config) *Sink {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	return &Sink{config: config, writer: config.Writer}
}

// NewFactory returns a factory function for creating console sinks.
func NewFactory() sink.Factory {
	return func(config map[string]any, _ *zap.Logger) (sink.Sink, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["color_output"].(bool); ok {
				cfg.ColorOutput = v
			}
			if v, ok := config["show_series"].(bool); ok {
				cfg.ShowSeries = v
			}
			if v, ok := config["show_panels"].(bool); ok {
				cfg.ShowPanels = v
			}
		}
		return New(cfg), nil
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "console"
}

func (s *Sink) OnSeriesUpdated(series string, points []types.ChannelSample) {
	if !s.config.ShowSeries || series != types.SeriesTPS || len(points) == 0 {
		return
	}
	last := points[len(points)-1]
	s.writeLine(fmt.Sprintf("%s TPS %s", last.Label, s.colorize(fmt.Sprintf("%.2f", last.Value), colorGreen)))
}

func (s *Sink) OnStatusChanged(status types.BenchmarkStatus, flags types.Capabilities) {
	s.mu.Lock()
	if status == s.lastStatus {
		s.mu.Unlock()
		return
	}
	s.lastStatus = status
	s.mu.Unlock()

	s.writeLine(fmt.Sprintf("Status: %s  [%s]", s.colorize(status.String(), statusColor(status)), formatFlags(flags)))
}

func (s *Sink) OnLogAppended(entry types.LogEntry) {
	s.writeLine(fmt.Sprintf("[%s] %s %s",
		entry.Timestamp,
		s.colorize(fmt.Sprintf("%-7s", strings.ToUpper(string(entry.Level))), levelColor(entry.Level)),
		entry.Message,
	))
}

func (s *Sink) OnLogHistoryReplaced(entries []types.LogEntry) {
	if len(entries) == 0 {
		s.writeLine(s.colorize("Logs cleared", colorYellow))
	}
}

// OnTransition prints a banner for lifecycle events.
func (s *Sink) OnTransition(t types.Transition) {
	color := colorCyan
	switch t.Event {
	case types.EventLoadFailed, types.EventGenericError:
		color = colorRed
	case types.EventLoadCancelled:
		color = colorYellow
	case types.EventLoadSucceeded:
		color = colorGreen
	}
	s.writeLine(s.colorize(fmt.Sprintf("=== %s: %s -> %s ===", t.Event, t.From, t.To), color))
}

// OnProgress prints the data-load progress bar.
func (s *Sink) OnProgress(p types.Progress) {
	if !p.Active {
		return
	}
	if p.Failed {
		s.writeLine(fmt.Sprintf("Load: %s %s", s.colorize("Error", colorRed), p.Message))
		return
	}
	bar := NewProgressBar(100, 30)
	bar.Update(p.Percent)
	s.writeLine(fmt.Sprintf("Load: %s %s", bar.String(), p.Message))
}

// OnConnectionChanged prints push channel state changes.
func (s *Sink) OnConnectionChanged(state types.ConnectionState) {
	color := colorYellow
	switch state {
	case types.ConnOpen:
		color = colorGreen
	case types.ConnClosed:
		color = colorRed
	}
	s.writeLine(fmt.Sprintf("Push channel: %s", s.colorize(string(state), color)))
}

// OnTransaction prints the throughput panel.
func (s *Sink) OnTransaction(tx *types.TransactionMetrics) {
	if !s.config.ShowPanels || tx == nil {
		return
	}
	s.writeLine(fmt.Sprintf("Transactions: %d | Success: %.1f%% | Avg: %.2f ms | Elapsed: %ds",
		tx.TotalTransactions, tx.OverallSuccessRate, tx.AvgLatencyMs, tx.ElapsedSeconds))
	for _, row := range tx.Transactions {
		s.writeLine(fmt.Sprintf("  %-12s %8d %8d %8d %6.1f%% %8.2f ms",
			row.Name, row.Count, row.Success, row.Failure, row.SuccessRate, row.AvgLatencyMs))
	}
}

// OnHost prints the host panel.
func (s *Sink) OnHost(host *types.HostMetrics) {
	if !s.config.ShowPanels || host == nil {
		return
	}
	s.writeLine(fmt.Sprintf("Host: CPU %.1f%% | Memory %.1f%% | Load %.2f | Net in %s/s out %s/s",
		host.CPUUsage, host.MemoryUsage, host.LoadAvg1,
		formatBytes(host.NetworkRecvBytesPerSec), formatBytes(host.NetworkSentBytesPerSec)))
}

// OnDatabase prints the database panel.
func (s *Sink) OnDatabase(db *types.DatabaseMetrics) {
	if !s.config.ShowPanels || db == nil {
		return
	}
	s.writeLine(fmt.Sprintf("Database: connections %.0f | buffer hit %.1f%% | lock waits %.0f | slow queries %.0f",
		db.ActiveConnections, db.BufferPoolHitRatio, db.LockWaits, db.SlowQueries))
}

// OnConfig prints the active benchmark configuration.
func (s *Sink) OnConfig(cfg *types.BenchmarkConfig) {
	if cfg == nil {
		return
	}
	mix := cfg.TransactionMix
	s.writeLine(s.colorize("--- Configuration ---", colorBlue))
	s.writeLine(fmt.Sprintf("  Database: %s %s (pool %d)", strings.ToUpper(cfg.Database.Type), cfg.Database.JdbcURL, cfg.Database.PoolSize))
	s.writeLine(fmt.Sprintf("  Warehouses: %d | Terminals: %d | Duration: %ds | Load concurrency: %d",
		cfg.Benchmark.Warehouses, cfg.Benchmark.Terminals, cfg.Benchmark.Duration, cfg.Benchmark.LoadConcurrency))
	s.writeLine(fmt.Sprintf("  Mix: NewOrder %d%% Payment %d%% OrderStatus %d%% Delivery %d%% StockLevel %d%%",
		mix.NewOrder, mix.Payment, mix.OrderStatus, mix.Delivery, mix.StockLevel))
}

// OnNotification prints a transient notification.
func (s *Sink) OnNotification(n types.Notification) {
	color := colorCyan
	switch n.Kind {
	case types.NotifySuccess:
		color = colorGreen
	case types.NotifyWarning:
		color = colorYellow
	case types.NotifyError:
		color = colorRed
	}
	s.writeLine(fmt.Sprintf("%s %s", s.colorize("["+n.Title+"]", color), n.Message))
}

func formatFlags(f types.Capabilities) string {
	var parts []string
	add := func(name string, on bool) {
		if on {
			parts = append(parts, name)
		}
	}
	add("start", f.CanStart)
	add("stop", f.CanStop)
	add("load", f.CanLoad)
	add("clean", f.CanClean)
	add("config", f.CanEditConfig)
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatBytes(v float64) string {
	switch {
	case v >= 1<<30:
		return fmt.Sprintf("%.1fGB", v/(1<<30))
	case v >= 1<<20:
		return fmt.Sprintf("%.1fMB", v/(1<<20))
	case v >= 1<<10:
		return fmt.Sprintf("%.1fKB", v/(1<<10))
	default:
		return fmt.Sprintf("%.0fB", v)
	}
}

func statusColor(s types.BenchmarkStatus) string {
	switch s {
	case types.StatusRunning, types.StatusLoaded:
		return colorGreen
	case types.StatusLoading, types.StatusStopping:
		return colorYellow
	case types.StatusError:
		return colorRed
	default:
		return colorWhite
	}
}

func levelColor(l types.LogLevel) string {
	switch l {
	case types.LevelSuccess:
		return colorGreen
	case types.LevelWarn:
		return colorYellow
	case types.LevelError:
		return colorRed
	default:
		return colorBlue
	}
}

func (s *Sink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, line)
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

func (s *Sink) colorize(str string, color string) string {
	if !s.config.ColorOutput {
		return str
	}
	return color + str + colorReset
}

// Close is a no-op; console output is unbuffered.
func (s *Sink) Close(ctx context.Context) error {
	return nil
}

// ProgressBar represents a simple progress bar.
type ProgressBar struct {
	total   int
	current int
	width   int
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(total, width int) *ProgressBar {
	return &ProgressBar{total: total, width: width}
}

// Update updates the progress bar.
func (p *ProgressBar) Update(current int) {
	p.current = current
}

// String returns the progress bar as a string.
func (p *ProgressBar) String() string {
	if p.total == 0 {
		return "[" + strings.Repeat("-", p.width) + "]"
	}

	progress := float64(p.current) / float64(p.total)
	filled := int(progress * float64(p.width))
	if filled > p.width {
		filled = p.width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	return fmt.Sprintf("[%s] %.0f%%", bar, progress*100)
}
