package syncer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/internal/logstore"
	"github.com/yzsind/dbbench/internal/rate"
	"github.com/yzsind/dbbench/internal/series"
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/status"
	"github.com/yzsind/dbbench/internal/summary"
	"github.com/yzsind/dbbench/pkg/types"
)

// LabelLayout formats the sample labels of every series.
const LabelLayout = "15:04:05"

// Router applies inbound messages and snapshots to the stores. It implements
// types.MessageVisitor and transport.Handler.
type Router struct {
	series  *series.Buffer
	rates   *rate.Calculator
	logs    *logstore.Store
	machine *status.Machine
	runs    *summary.Recorder
	panels  sink.PanelSink
	clock   clockwork.Clock
	logger  *zap.Logger

	mu     sync.RWMutex
	tx     *types.TransactionMetrics
	table  []types.TransactionTypeMetrics
	host   *types.HostMetrics
	db     *types.DatabaseMetrics
	dbHost *types.DbHostMetrics
}

func newRouter(c *Controller) *Router {
	return &Router{
		series:  c.series,
		rates:   c.rates,
		logs:    c.logs,
		machine: c.machine,
		runs:    c.runs,
		panels:  c.sinks,
		clock:   c.clock,
		logger:  c.logger.Named("router"),
	}
}

// HandleMessage dispatches a push message to the matching visitor method.
func (r *Router) HandleMessage(msg types.Message) {
	defer r.guard("push message")
	msg.Accept(r)
}

// HandlePolled applies a snapshot fetched by the poll path and notes status
// changes in the live tail.
func (r *Router) HandlePolled(snap *types.MetricSnapshot) {
	defer r.guard("polled snapshot")
	if snap == nil {
		return
	}
	before := r.machine.Status()
	r.ApplySnapshot(snap)
	if !snap.Status.IsZero() && !before.IsZero() && snap.Status != before {
		r.note(types.LevelInfo, "Status changed to: "+snap.Status.String())
	}
}

func (r *Router) VisitLog(m *types.LogMessage) {
	r.logs.Append(m.Entry)
}

func (r *Router) VisitProgress(m *types.ProgressMessage) {
	r.machine.SetProgress(m.Progress, m.Message)
	if !m.Status.IsZero() {
		r.machine.Observe(m.Status)
	}
}

func (r *Router) VisitStatus(m *types.StatusMessage) {
	r.machine.Observe(m.Status)
}

func (r *Router) VisitMetrics(m *types.MetricsMessage) {
	r.ApplySnapshot(&m.Snapshot)
}

// ApplySnapshot routes a snapshot field by field. The snapshot's own status
// is observed first because the throughput series is gated on it.
func (r *Router) ApplySnapshot(snap *types.MetricSnapshot) {
	if snap == nil {
		return
	}
	if !snap.Status.IsZero() {
		r.machine.Observe(snap.Status)
	}
	if snap.Loading && snap.LoadProgress != nil {
		r.machine.SetProgress(*snap.LoadProgress, loadMessage(snap))
	}

	now := r.clock.Now()
	label := now.Format(LabelLayout)

	if snap.Transaction != nil {
		r.applyTransaction(snap.Transaction, label)
	}
	if snap.Host != nil {
		r.applyHost(snap.Host, label)
	}
	if snap.Database != nil {
		r.applyDatabase(snap.Database, label)
	}
	if snap.DbHost != nil {
		r.applyDbHost(snap.DbHost, label, now)
	}
}

func loadMessage(snap *types.MetricSnapshot) string {
	if snap.LoadMessage == "" {
		return "Loading..."
	}
	return snap.LoadMessage
}

func (r *Router) applyTransaction(tx *types.TransactionMetrics, label string) {
	cp := *tx
	running := r.machine.Status() == types.StatusRunning

	r.mu.Lock()
	r.tx = &cp
	if running {
		r.table = append([]types.TransactionTypeMetrics(nil), tx.Transactions...)
	}
	r.mu.Unlock()

	if r.panels != nil {
		r.panels.OnTransaction(&cp)
	}
	// the throughput chart only advances during a run
	if !running {
		return
	}
	r.series.Push(types.SeriesTPS, label, tx.TPS)
	r.runs.Record(tx.TPS)
}

func (r *Router) applyHost(host *types.HostMetrics, label string) {
	cp := *host
	r.mu.Lock()
	r.host = &cp
	r.mu.Unlock()
	if r.panels != nil {
		r.panels.OnHost(&cp)
	}

	r.series.Push(types.SeriesHostCPU, label, host.CPUUsage)
	r.series.Push(types.SeriesHostNetRecv, label, host.NetworkRecvBytesPerSec)
	r.series.Push(types.SeriesHostNetSent, label, host.NetworkSentBytesPerSec)
}

func (r *Router) applyDatabase(db *types.DatabaseMetrics, label string) {
	cp := *db
	r.mu.Lock()
	r.db = &cp
	r.mu.Unlock()
	if r.panels != nil {
		r.panels.OnDatabase(&cp)
	}

	r.series.Push(types.SeriesDBConnections, label, db.ActiveConnections)
	r.series.Push(types.SeriesDBLockWaits, label, db.LockWaits)
}

func (r *Router) applyDbHost(h *types.DbHostMetrics, label string, now time.Time) {
	cp := *h
	r.mu.Lock()
	r.dbHost = &cp
	r.mu.Unlock()

	if h.CPUUsage != nil {
		r.series.Push(types.SeriesDBCPU, label, *h.CPUUsage)
	}
	// disk rates need both counters
	if h.DiskReadBytes == nil || h.DiskWriteBytes == nil {
		return
	}
	if v, ok := r.rates.Rate(types.SeriesDBDiskRead, *h.DiskReadBytes, now); ok {
		r.series.Push(types.SeriesDBDiskRead, label, v)
	}
	if v, ok := r.rates.Rate(types.SeriesDBDiskWrite, *h.DiskWriteBytes, now); ok {
		r.series.Push(types.SeriesDBDiskWrite, label, v)
	}
}

// BackfillTPS replaces the throughput series with historical points.
func (r *Router) BackfillTPS(points []types.TPSPoint) {
	samples := make([]types.ChannelSample, 0, len(points))
	for _, p := range points {
		samples = append(samples, types.ChannelSample{
			Label: time.UnixMilli(p.Timestamp).In(r.clock.Now().Location()).Format(LabelLayout),
			Value: p.TPS,
		})
	}
	r.series.Replace(types.SeriesTPS, samples)
}

// ResetRun clears the run-scoped series and the counter state.
func (r *Router) ResetRun() {
	r.series.ResetAll(types.RunScopedSeries...)
	r.rates.ResetAll()
	r.runs.Reset()
	r.mu.Lock()
	r.table = nil
	r.mu.Unlock()
}

func (r *Router) note(level types.LogLevel, message string) {
	r.logs.AppendTail(types.NewLogEntry(r.clock.Now(), level, message))
}

// guard keeps a faulty payload from escaping the update entry points.
func (r *Router) guard(what string) {
	if rec := recover(); rec != nil {
		r.logger.Error("failed to apply "+what, zap.Any("panic", rec))
		r.note(types.LevelError, fmt.Sprintf("Failed to apply %s: %v", what, rec))
	}
}

// Transaction returns the latest transaction totals.
func (r *Router) Transaction() *types.TransactionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tx == nil {
		return nil
	}
	cp := *r.tx
	return &cp
}

// TransactionTable returns the per-type table of the current run.
func (r *Router) TransactionTable() []types.TransactionTypeMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.TransactionTypeMetrics(nil), r.table...)
}

// Host returns the latest host metrics.
func (r *Router) Host() *types.HostMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.host == nil {
		return nil
	}
	cp := *r.host
	return &cp
}

// Database returns the latest database metrics.
func (r *Router) Database() *types.DatabaseMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil
	}
	cp := *r.db
	return &cp
}

// DbHost returns the latest database host metrics.
func (r *Router) DbHost() *types.DbHostMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dbHost == nil {
		return nil
	}
	cp := *r.dbHost
	return &cp
}
