package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yzsind/dbbench/api/rest/client"
	"github.com/yzsind/dbbench/internal/logstore"
	"github.com/yzsind/dbbench/internal/rate"
	"github.com/yzsind/dbbench/internal/series"
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/status"
	"github.com/yzsind/dbbench/internal/summary"
	"github.com/yzsind/dbbench/internal/transport"
	"github.com/yzsind/dbbench/pkg/types"
)

// Backend is the part of the REST client the controller needs.
type Backend interface {
	transport.Fetcher
	GetBenchmarkConfig(ctx context.Context) (*types.BenchmarkConfig, error)
	GetLogs(ctx context.Context, limit int) ([]types.LogEntry, error)
	GetTPSHistory(ctx context.Context, limit int) ([]types.TPSPoint, error)
	Start(ctx context.Context) (*types.OperationResponse, error)
	Stop(ctx context.Context) (*types.OperationResponse, error)
	Load(ctx context.Context) (*types.OperationResponse, error)
	CancelLoad(ctx context.Context) (*types.OperationResponse, error)
	Clean(ctx context.Context) (*types.OperationResponse, error)
	SaveConfig(ctx context.Context, cfg *types.BenchmarkConfig) (*types.OperationResponse, error)
	TestConnection(ctx context.Context, db types.DatabaseSettings) (*types.OperationResponse, error)
	ClearLogs(ctx context.Context) error
}

// Config holds the store sizes and fetch limits of the controller.
type Config struct {
	SeriesCapacity  int
	HistoryCapacity int
	TailCapacity    int
	HistoryBackfill int
	StartupLogFetch int
	ViewerLogFetch  int
	StartupTailSeed int
	GraceDelay      time.Duration
	Transport       transport.Config
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		SeriesCapacity:  series.DefaultCapacity,
		HistoryCapacity: logstore.DefaultHistoryCapacity,
		TailCapacity:    logstore.DefaultTailCapacity,
		HistoryBackfill: 60,
		StartupLogFetch: 100,
		ViewerLogFetch:  1000,
		StartupTailSeed: 50,
		GraceDelay:      status.DefaultGraceDelay,
		Transport:       transport.DefaultConfig(),
	}
}

// Controller is the top-level coordinator of the telemetry core.
type Controller struct {
	cfg     Config
	backend Backend
	clock   clockwork.Clock
	logger  *zap.Logger
	sinks   *sink.Manager

	series    *series.Buffer
	rates     *rate.Calculator
	logs      *logstore.Store
	machine   *status.Machine
	runs      *summary.Recorder
	router    *Router
	transport *transport.Manager

	mu     sync.RWMutex
	config *types.BenchmarkConfig
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithSinks sets the sink manager receiving the published views.
func WithSinks(m *sink.Manager) Option {
	return func(c *Controller) { c.sinks = m }
}

// New wires the stores, router and transport together.
func New(cfg Config, backend Backend, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		backend: backend,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sinks == nil {
		c.sinks = sink.NewManager(nil, c.logger)
	}

	c.series = series.New(cfg.SeriesCapacity)
	c.rates = rate.NewCalculator()
	c.logs = logstore.New(cfg.HistoryCapacity, cfg.TailCapacity)
	c.machine = status.New(c.clock, cfg.GraceDelay)
	c.runs = summary.NewRecorder()
	c.router = newRouter(c)
	c.transport = transport.NewManager(cfg.Transport, backend, c.router,
		transport.WithClock(c.clock),
		transport.WithLogger(c.logger.Named("transport")),
	)

	c.series.Subscribe(c.sinks.OnSeriesUpdated)
	c.logs.OnAppend(c.sinks.OnLogAppended)
	c.logs.OnReplace(c.sinks.OnLogHistoryReplaced)
	c.machine.SubscribeProgress(c.sinks.OnProgress)
	c.machine.Subscribe(c.onStatus)
	c.transport.OnStateChange(c.onConnection)
	return c
}

func (c *Controller) onStatus(u status.Update) {
	c.sinks.OnStatusChanged(u.Current, u.Capabilities)
	t, ok := u.Transition()
	if !ok {
		return
	}
	c.sinks.OnTransition(t)

	switch t.Event {
	case types.EventLoadSucceeded:
		c.notify(types.NotifySuccess, "Data Loaded", "TPC-C data has been loaded successfully")
	case types.EventLoadCancelled:
		c.notify(types.NotifyWarning, "Load Cancelled", "Data loading was cancelled by user")
	case types.EventLoadFailed:
		c.notify(types.NotifyError, "Load Failed", "Data loading failed, check logs for details")
	case types.EventRunCompleted:
		c.notify(types.NotifyInfo, "Benchmark Complete", "Benchmark has finished running")
		if s, ok := c.runs.Summary(); ok {
			c.note(types.LevelSuccess, s.String())
			c.notify(types.NotifySuccess, "Run Summary", s.String())
		}
	case types.EventGenericError:
		c.notify(types.NotifyError, "Error", "An error occurred, check logs for details")
	}
}

func (c *Controller) onConnection(state types.ConnectionState, err error) {
	c.sinks.OnConnectionChanged(state)
	switch {
	case state == types.ConnOpen:
		c.note(types.LevelSuccess, "WebSocket connected")
	case state == types.ConnClosed && err != nil:
		c.note(types.LevelWarn, "WebSocket disconnected, reconnecting...")
	}
}

// note adds a console-local entry to the live tail.
func (c *Controller) note(level types.LogLevel, message string) {
	c.logs.AppendTail(types.NewLogEntry(c.clock.Now(), level, message))
}

func (c *Controller) notify(kind types.NotificationKind, title, message string) {
	c.sinks.OnNotification(types.Notification{
		ID:      uuid.NewString(),
		Kind:    kind,
		Title:   title,
		Message: message,
		Time:    c.clock.Now(),
	})
}

// Run keeps the stores current until ctx is cancelled or Close is called.
func (c *Controller) Run(ctx context.Context) error {
	return c.transport.Run(ctx)
}

// Bootstrap hydrates the stores from the backend: status first, then the
// metric snapshot, then the logs.
func (c *Controller) Bootstrap(ctx context.Context) error {
	var (
		cfg  *types.BenchmarkConfig
		snap *types.MetricSnapshot
		logs []types.LogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cfg, err = c.backend.GetBenchmarkConfig(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = c.backend.GetCurrentMetrics(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = c.backend.GetLogs(gctx, c.cfg.StartupLogFetch)
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("bootstrap failed", zap.Error(err))
		c.note(types.LevelError, "Failed to load initial state: "+err.Error())
		return fmt.Errorf("load initial state: %w", err)
	}

	c.setConfig(cfg)

	c.router.ApplySnapshot(snap)

	if st := c.machine.Status(); st == types.StatusRunning || st == types.StatusStopped {
		c.backfill(ctx)
	}
	// a load without a reported percentage still shows the indicator
	if snap.Loading && snap.LoadProgress == nil {
		c.machine.SetProgress(0, loadMessage(snap))
	}

	c.logs.ReplaceHistory(logs)
	seed := logs
	if n := c.cfg.StartupTailSeed; n > 0 && len(seed) > n {
		seed = seed[len(seed)-n:]
	}
	c.logs.SeedTail(seed)

	c.note(types.LevelSuccess, "Dashboard initialized")
	return nil
}

// Refresh re-runs the bootstrap, e.g. after the console was suspended.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.Bootstrap(ctx)
}

func (c *Controller) backfill(ctx context.Context) {
	points, err := c.backend.GetTPSHistory(ctx, c.cfg.HistoryBackfill)
	if err != nil {
		c.logger.Warn("tps history unavailable", zap.Error(err))
		return
	}
	if len(points) == 0 {
		return
	}
	c.router.BackfillTPS(points)
	c.note(types.LevelInfo, fmt.Sprintf("Restored %d chart data points", len(points)))
}

func (c *Controller) setConfig(cfg *types.BenchmarkConfig) {
	if cfg == nil {
		return
	}
	cp := *cfg
	c.mu.Lock()
	c.config = &cp
	c.mu.Unlock()
	c.sinks.OnConfig(&cp)
}

// Close stops the transport, the grace timer and the sinks.
func (c *Controller) Close(ctx context.Context) error {
	c.transport.Close()
	c.machine.Close()
	return c.sinks.Close(ctx)
}

// Transport exposes the transport counters.
func (c *Controller) Transport() *transport.Manager {
	return c.transport
}

// Series returns a copy of a series.
func (c *Controller) Series(name string) []types.ChannelSample {
	return c.series.Snapshot(name)
}

// SeriesNames returns the known series keys.
func (c *Controller) SeriesNames() []string {
	return c.series.Names()
}

// Status returns the last observed status.
func (c *Controller) Status() types.BenchmarkStatus {
	return c.machine.Status()
}

// Capabilities returns the flags derived from the current status.
func (c *Controller) Capabilities() types.Capabilities {
	return c.machine.Capabilities()
}

// Progress returns the data-load progress indicator.
func (c *Controller) Progress() types.Progress {
	return c.machine.Progress()
}

// LogTail returns the live tail.
func (c *Controller) LogTail() []types.LogEntry {
	return c.logs.Tail()
}

// LogHistory returns the full-history buffer.
func (c *Controller) LogHistory() []types.LogEntry {
	return c.logs.History()
}

// QueryLogs filters the history by text and level.
func (c *Controller) QueryLogs(text string, level types.LogLevel) []types.LogEntry {
	return c.logs.Query(text, level)
}

// Config returns the current benchmark configuration, nil before bootstrap.
func (c *Controller) Config() *types.BenchmarkConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.config == nil {
		return nil
	}
	cp := *c.config
	return &cp
}

// Connection returns the push channel state.
func (c *Controller) Connection() types.ConnectionState {
	return c.transport.State()
}

// LastTransaction returns the latest transaction totals.
func (c *Controller) LastTransaction() *types.TransactionMetrics {
	return c.router.Transaction()
}

// TransactionTable returns the per-type breakdown of the current run.
func (c *Controller) TransactionTable() []types.TransactionTypeMetrics {
	return c.router.TransactionTable()
}

// Host returns the latest host metrics.
func (c *Controller) Host() *types.HostMetrics {
	return c.router.Host()
}

// Database returns the latest database metrics.
func (c *Controller) Database() *types.DatabaseMetrics {
	return c.router.Database()
}

// Summary returns the throughput distribution of the current run.
func (c *Controller) Summary() (summary.Summary, bool) {
	return c.runs.Summary()
}

// exec forwards a command and reports its outcome.
func (c *Controller) exec(ctx context.Context, name string, call func(context.Context) (*types.OperationResponse, error)) (*types.OperationResponse, error) {
	resp, err := call(ctx)
	if err != nil {
		if apiErr, ok := client.IsAPIError(err); ok {
			c.logger.Warn("command rejected", zap.String("command", name), zap.Error(err))
			c.note(types.LevelError, "Error: "+apiErr.Error())
			c.notify(types.NotifyError, "Operation Failed", apiErr.Error())
			return resp, err
		}
		c.logger.Error("command failed", zap.String("command", name), zap.Error(err))
		c.note(types.LevelError, "Request failed: "+err.Error())
		c.notify(types.NotifyError, "Request Failed", err.Error())
		return nil, err
	}
	if resp == nil {
		resp = &types.OperationResponse{Success: true}
	}

	if resp.Message != "" {
		c.note(types.LevelSuccess, resp.Message)
	}
	if resp.Status != "" {
		c.machine.Observe(types.ParseStatus(string(resp.Status)))
	}
	return resp, nil
}

// Start resets the run-scoped series and starts a benchmark run.
func (c *Controller) Start(ctx context.Context) (*types.OperationResponse, error) {
	c.router.ResetRun()
	c.note(types.LevelInfo, "Starting benchmark...")
	resp, err := c.exec(ctx, "start", c.backend.Start)
	if err == nil {
		c.notify(types.NotifySuccess, "Benchmark Started", "Benchmark is now running")
	}
	return resp, err
}

// Stop stops the running benchmark.
func (c *Controller) Stop(ctx context.Context) (*types.OperationResponse, error) {
	c.note(types.LevelInfo, "Stopping benchmark...")
	resp, err := c.exec(ctx, "stop", c.backend.Stop)
	if err == nil {
		c.notify(types.NotifyInfo, "Benchmark Stopped", "Benchmark has been stopped")
	}
	return resp, err
}

// Load starts loading the test data set.
func (c *Controller) Load(ctx context.Context) (*types.OperationResponse, error) {
	c.machine.ArmLoad()
	c.note(types.LevelInfo, "Starting data load... this may take several minutes")
	c.notify(types.NotifyInfo, "Data Loading", "TPC-C data loading has started")
	return c.exec(ctx, "load", c.backend.Load)
}

// CancelLoad cancels the data load in progress.
func (c *Controller) CancelLoad(ctx context.Context) (*types.OperationResponse, error) {
	c.machine.CancelRequested()
	c.note(types.LevelWarn, "Cancelling data load...")
	resp, err := c.exec(ctx, "cancel-load", c.backend.CancelLoad)
	if err == nil {
		c.notify(types.NotifyWarning, "Cancelling", "Data loading is being cancelled...")
	}
	return resp, err
}

// Clean drops the test data set.
func (c *Controller) Clean(ctx context.Context) (*types.OperationResponse, error) {
	c.note(types.LevelInfo, "Cleaning test data...")
	resp, err := c.exec(ctx, "clean", c.backend.Clean)
	if err == nil {
		c.notify(types.NotifySuccess, "Data Cleaned", "All TPC-C tables have been dropped")
	}
	return resp, err
}

// SaveConfig validates cfg and stores it on the backend. An invalid
// transaction mix is rejected before any request is made.
func (c *Controller) SaveConfig(ctx context.Context, cfg *types.BenchmarkConfig) (*types.OperationResponse, error) {
	if err := cfg.Validate(); err != nil {
		var mixErr *types.MixError
		if errors.As(err, &mixErr) {
			c.notify(types.NotifyError, "Invalid Configuration",
				fmt.Sprintf("Transaction mix must total 100%% (currently %d%%)", mixErr.Total))
		}
		return nil, err
	}

	resp, err := c.backend.SaveConfig(ctx, cfg)
	if err != nil {
		if apiErr, ok := client.IsAPIError(err); ok {
			c.note(types.LevelError, "Failed to save config: "+apiErr.Error())
			c.notify(types.NotifyError, "Save Failed", apiErr.Error())
			return resp, err
		}
		c.note(types.LevelError, "Request failed: "+err.Error())
		c.notify(types.NotifyError, "Request Failed", err.Error())
		return nil, err
	}

	var saved *types.BenchmarkConfig
	if resp != nil {
		saved = resp.Config
	}
	if saved == nil {
		saved = cfg
	}
	c.setConfig(saved)
	c.note(types.LevelSuccess, "Configuration saved successfully")
	c.notify(types.NotifySuccess, "Configuration Saved", "Benchmark configuration has been updated")
	return resp, nil
}

// TestConnection asks the backend to connect with db.
func (c *Controller) TestConnection(ctx context.Context, db types.DatabaseSettings) (*types.OperationResponse, error) {
	resp, err := c.backend.TestConnection(ctx, db)
	if err != nil {
		if apiErr, ok := client.IsAPIError(err); ok {
			suggestion := apiErr.Suggestion
			if suggestion == "" {
				suggestion = "Check your connection settings"
			}
			c.notify(types.NotifyError, "Connection Failed",
				fmt.Sprintf("%s\n\nSuggestion: %s", apiErr.Error(), suggestion))
			return resp, err
		}
		c.notify(types.NotifyError, "Request Failed", err.Error())
		return nil, err
	}
	database := ""
	if resp != nil {
		database = resp.Database
	}
	c.notify(types.NotifySuccess, "Connection Successful", "Connected to "+database)
	return resp, nil
}

// ClearLogs deletes the backend logs and empties both local buffers.
func (c *Controller) ClearLogs(ctx context.Context) error {
	if err := c.backend.ClearLogs(ctx); err != nil {
		c.logger.Warn("clear logs failed", zap.Error(err))
		c.note(types.LevelError, "Failed to clear logs: "+err.Error())
		return err
	}
	c.logs.Clear()
	c.note(types.LevelInfo, "Logs cleared")
	return nil
}

// OpenLogViewer replaces the history with the backend's persisted logs and
// returns it.
func (c *Controller) OpenLogViewer(ctx context.Context) ([]types.LogEntry, error) {
	logs, err := c.backend.GetLogs(ctx, c.cfg.ViewerLogFetch)
	if err != nil {
		c.logger.Warn("log viewer fetch failed", zap.Error(err))
		return c.logs.History(), err
	}
	c.logs.ReplaceHistory(logs)
	return c.logs.History(), nil
}
