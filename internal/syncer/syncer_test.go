package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzsind/dbbench/api/rest/client"
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/testutil"
	"github.com/yzsind/dbbench/pkg/types"
)

type recordingSink struct {
	sink.Nop
	mu            sync.Mutex
	notifications []types.Notification
	transitions   []types.Transition
	statuses      []types.BenchmarkStatus
	seriesCalls   map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seriesCalls: make(map[string]int)}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) OnSeriesUpdated(series string, _ []types.ChannelSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seriesCalls[series]++
}

func (s *recordingSink) OnStatusChanged(st types.BenchmarkStatus, _ types.Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) OnTransition(t types.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
}

func (s *recordingSink) OnNotification(n types.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n.Title)
	}
	return out
}

func (s *recordingSink) last() types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notifications) == 0 {
		return types.Notification{}
	}
	return s.notifications[len(s.notifications)-1]
}

type fixture struct {
	backend *testutil.Backend
	clock   *clockwork.FakeClock
	rec     *recordingSink
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	rec := newRecordingSink()
	sinks := sink.NewManager(nil, nil)
	sinks.Add(rec)

	cfg := DefaultConfig()
	cli := client.NewClient(&client.Config{BaseURL: backend.URL, RequestTimeout: 2 * time.Second})
	pushURL, err := cli.PushURL("/ws/metrics")
	require.NoError(t, err)
	cfg.Transport.PushURL = pushURL

	ctrl := New(cfg, cli, WithClock(clock), WithSinks(sinks))
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })
	return &fixture{backend: backend, clock: clock, rec: rec, ctrl: ctrl}
}

func f64(v float64) *float64 { return &v }

func messages(entries []types.LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestRouter_DiskRateEndToEnd(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	r.ApplySnapshot(&types.MetricSnapshot{DbHost: &types.DbHostMetrics{DiskReadBytes: f64(1000), DiskWriteBytes: f64(0)}})
	assert.Empty(t, f.ctrl.Series(types.SeriesDBDiskRead), "first sample only primes the rate state")

	f.clock.Advance(time.Second)
	r.ApplySnapshot(&types.MetricSnapshot{DbHost: &types.DbHostMetrics{DiskReadBytes: f64(3000), DiskWriteBytes: f64(500)}})

	points := f.ctrl.Series(types.SeriesDBDiskRead)
	require.Len(t, points, 1)
	assert.Equal(t, 2000.0, points[0].Value)
	assert.Equal(t, "10:00:01", points[0].Label)
	assert.Equal(t, 500.0, f.ctrl.Series(types.SeriesDBDiskWrite)[0].Value)
}

func TestRouter_DiskRateNeedsBothCounters(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	r.ApplySnapshot(&types.MetricSnapshot{DbHost: &types.DbHostMetrics{DiskReadBytes: f64(1000), CPUUsage: f64(12)}})
	f.clock.Advance(time.Second)
	r.ApplySnapshot(&types.MetricSnapshot{DbHost: &types.DbHostMetrics{DiskReadBytes: f64(3000)}})

	assert.Empty(t, f.ctrl.Series(types.SeriesDBDiskRead))
	assert.False(t, f.ctrl.rates.Tracked(types.SeriesDBDiskRead))
	assert.Len(t, f.ctrl.Series(types.SeriesDBCPU), 1)
}

func TestRouter_TransactionGatedOnRunning(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router
	tx := &types.TransactionMetrics{
		TPS:               120,
		TotalTransactions: 500,
		Transactions:      []types.TransactionTypeMetrics{{Name: "NewOrder", Count: 200}},
	}

	r.ApplySnapshot(&types.MetricSnapshot{Status: types.StatusIdle, Transaction: tx})
	assert.Empty(t, f.ctrl.Series(types.SeriesTPS))
	require.NotNil(t, f.ctrl.LastTransaction())
	assert.Equal(t, int64(500), f.ctrl.LastTransaction().TotalTransactions)
	assert.Empty(t, f.ctrl.TransactionTable())

	r.ApplySnapshot(&types.MetricSnapshot{Status: types.StatusRunning, Transaction: tx})
	points := f.ctrl.Series(types.SeriesTPS)
	require.Len(t, points, 1)
	assert.Equal(t, 120.0, points[0].Value)
	assert.Len(t, f.ctrl.TransactionTable(), 1)
}

func TestRouter_HostAndDatabaseAlwaysUpdate(t *testing.T) {
	f := newFixture(t)
	f.ctrl.router.ApplySnapshot(&types.MetricSnapshot{
		Status:   types.StatusIdle,
		Host:     &types.HostMetrics{CPUUsage: 33, NetworkRecvBytesPerSec: 10, NetworkSentBytesPerSec: 20},
		Database: &types.DatabaseMetrics{ActiveConnections: 7, LockWaits: 2},
	})

	assert.Equal(t, 33.0, f.ctrl.Series(types.SeriesHostCPU)[0].Value)
	assert.Equal(t, 10.0, f.ctrl.Series(types.SeriesHostNetRecv)[0].Value)
	assert.Equal(t, 20.0, f.ctrl.Series(types.SeriesHostNetSent)[0].Value)
	assert.Equal(t, 7.0, f.ctrl.Series(types.SeriesDBConnections)[0].Value)
	assert.Equal(t, 2.0, f.ctrl.Series(types.SeriesDBLockWaits)[0].Value)
	assert.Equal(t, 33.0, f.ctrl.Host().CPUUsage)
	assert.Equal(t, 7.0, f.ctrl.Database().ActiveConnections)
}

func TestRouter_Messages(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	r.HandleMessage(&types.StatusMessage{Status: types.StatusLoading})
	r.HandleMessage(&types.ProgressMessage{Progress: 40, Message: "Loading stock"})
	p := f.ctrl.Progress()
	assert.True(t, p.Active)
	assert.Equal(t, 40, p.Percent)
	assert.Equal(t, "Loading stock", p.Message)

	r.HandleMessage(&types.LogMessage{Entry: types.LogEntry{Level: types.LevelInfo, Message: "warehouse 1 done"}})
	assert.Equal(t, []string{"warehouse 1 done"}, messages(f.ctrl.LogHistory()))

	r.HandleMessage(&types.ProgressMessage{Progress: 100, Message: "Done", Status: types.StatusLoaded})
	assert.Equal(t, types.StatusLoaded, f.ctrl.Status())
	assert.False(t, f.ctrl.Progress().Active)
	assert.Contains(t, f.rec.titles(), "Data Loaded")
}

func TestRouter_PolledStatusChangeNoted(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	r.HandlePolled(&types.MetricSnapshot{Status: types.StatusIdle})
	r.HandlePolled(&types.MetricSnapshot{Status: types.StatusIdle})
	assert.Empty(t, f.ctrl.LogTail())

	r.HandlePolled(&types.MetricSnapshot{Status: types.StatusRunning})
	assert.Equal(t, []string{"Status changed to: RUNNING"}, messages(f.ctrl.LogTail()))

	r.HandlePolled(nil)
}

func TestRouter_PolledSnapshotUpdatesLoadProgress(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	progress := 42
	r.HandlePolled(&types.MetricSnapshot{
		Status:       types.StatusLoading,
		Loading:      true,
		LoadProgress: &progress,
		LoadMessage:  "Loading warehouse 5/10",
	})

	p := f.ctrl.Progress()
	assert.True(t, p.Active)
	assert.Equal(t, 42, p.Percent)
	assert.Equal(t, "Loading warehouse 5/10", p.Message)

	progress = 80
	r.HandleMessage(&types.MetricsMessage{Snapshot: types.MetricSnapshot{
		Status:       types.StatusLoading,
		Loading:      true,
		LoadProgress: &progress,
	}})
	p = f.ctrl.Progress()
	assert.Equal(t, 80, p.Percent)
	assert.Equal(t, "Loading...", p.Message)
}

func TestRouter_SnapshotWithoutProgressKeepsIndicator(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router

	progress := 30
	r.HandlePolled(&types.MetricSnapshot{Status: types.StatusLoading, Loading: true, LoadProgress: &progress})
	r.HandlePolled(&types.MetricSnapshot{Status: types.StatusLoading, Loading: true})

	assert.Equal(t, 30, f.ctrl.Progress().Percent)
}

func TestController_StatusNotifications(t *testing.T) {
	cases := []struct {
		from, to types.BenchmarkStatus
		title    string
	}{
		{types.StatusLoading, types.StatusLoaded, "Data Loaded"},
		{types.StatusLoading, types.StatusCancelled, "Load Cancelled"},
		{types.StatusLoading, types.StatusError, "Load Failed"},
		{types.StatusRunning, types.StatusStopped, "Benchmark Complete"},
		{types.StatusLoaded, types.StatusError, "Error"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			f := newFixture(t)
			f.ctrl.router.ApplySnapshot(&types.MetricSnapshot{Status: tc.from})
			f.ctrl.router.ApplySnapshot(&types.MetricSnapshot{Status: tc.to})
			assert.Equal(t, []string{tc.title}, f.rec.titles())
		})
	}
}

func TestController_RunSummaryOnCompletion(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router
	r.ApplySnapshot(&types.MetricSnapshot{Status: types.StatusRunning})
	for _, tps := range []float64{100, 200, 300} {
		r.ApplySnapshot(&types.MetricSnapshot{Transaction: &types.TransactionMetrics{TPS: tps}})
	}
	r.ApplySnapshot(&types.MetricSnapshot{Status: types.StatusStopped})

	s, ok := f.ctrl.Summary()
	require.True(t, ok)
	assert.Equal(t, int64(3), s.Samples)
	assert.Equal(t, 200.0, s.Mean)
	assert.Equal(t, []string{"Benchmark Complete", "Run Summary"}, f.rec.titles())
	tail := f.ctrl.LogTail()
	require.NotEmpty(t, tail)
	assert.True(t, strings.HasPrefix(tail[len(tail)-1].Message, "Run summary: 3 samples"))
}

func TestController_Bootstrap(t *testing.T) {
	f := newFixture(t)
	f.backend.SetMetrics(types.MetricSnapshot{
		Status:      types.StatusRunning,
		Transaction: &types.TransactionMetrics{TPS: 99},
	})
	base := time.Date(2024, 5, 1, 9, 59, 0, 0, time.UTC).UnixMilli()
	f.backend.SetHistory([]types.TPSPoint{
		{Timestamp: base, TPS: 10},
		{Timestamp: base + 1000, TPS: 20},
		{Timestamp: base + 2000, TPS: 30},
	})
	f.backend.SetLogs(testutil.LogEntries(60))

	require.NoError(t, f.ctrl.Bootstrap(context.Background()))

	assert.Equal(t, types.StatusRunning, f.ctrl.Status())
	require.NotNil(t, f.ctrl.Config())
	assert.Equal(t, 10, f.ctrl.Config().Benchmark.Warehouses)

	points := f.ctrl.Series(types.SeriesTPS)
	require.Len(t, points, 3)
	assert.Equal(t, "09:59:00", points[0].Label)
	assert.Equal(t, 30.0, points[2].Value)

	assert.Len(t, f.ctrl.LogHistory(), 60)
	tail := messages(f.ctrl.LogTail())
	require.Len(t, tail, 52)
	assert.Equal(t, "Restored 3 chart data points", tail[0])
	assert.Equal(t, "Dashboard initialized", tail[len(tail)-1])

	assert.Equal(t, 1, f.backend.Hits(testutil.Key("GET", "/api/metrics/tps-history")))
}

func TestController_BootstrapSkipsBackfillWhenIdle(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory([]types.TPSPoint{{Timestamp: 1, TPS: 10}})

	require.NoError(t, f.ctrl.Bootstrap(context.Background()))
	assert.Equal(t, 0, f.backend.Hits(testutil.Key("GET", "/api/metrics/tps-history")))
	assert.Empty(t, f.ctrl.Series(types.SeriesTPS))
}

func TestController_BootstrapRestoresLoadProgress(t *testing.T) {
	f := newFixture(t)
	progress := 40
	f.backend.SetMetrics(types.MetricSnapshot{Status: types.StatusLoading, Loading: true, LoadProgress: &progress})

	require.NoError(t, f.ctrl.Bootstrap(context.Background()))

	p := f.ctrl.Progress()
	assert.True(t, p.Active)
	assert.True(t, p.CancelArmed)
	assert.Equal(t, 40, p.Percent)
	assert.Equal(t, "Loading...", p.Message)
}

func TestController_BootstrapFailure(t *testing.T) {
	cli := client.NewClient(&client.Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	ctrl := New(DefaultConfig(), cli)
	defer ctrl.Close(context.Background())

	err := ctrl.Bootstrap(context.Background())
	require.Error(t, err)
	tail := ctrl.LogTail()
	require.Len(t, tail, 1)
	assert.Equal(t, types.LevelError, tail[0].Level)
	assert.True(t, strings.HasPrefix(tail[0].Message, "Failed to load initial state: "))
	assert.Equal(t, types.BenchmarkStatus(""), ctrl.Status())
}

func TestController_StartResetsRunState(t *testing.T) {
	f := newFixture(t)
	r := f.ctrl.router
	r.ApplySnapshot(&types.MetricSnapshot{
		Status:      types.StatusRunning,
		Transaction: &types.TransactionMetrics{TPS: 50},
		Host:        &types.HostMetrics{CPUUsage: 20},
		DbHost:      &types.DbHostMetrics{DiskReadBytes: f64(1), DiskWriteBytes: f64(1)},
	})
	require.True(t, f.ctrl.rates.Tracked(types.SeriesDBDiskRead))
	f.backend.SetResponse("start", types.OperationResponse{Success: true, Message: "Benchmark started", Status: types.StatusRunning})

	resp, err := f.ctrl.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)

	assert.Empty(t, f.ctrl.Series(types.SeriesTPS))
	assert.Len(t, f.ctrl.Series(types.SeriesHostCPU), 1, "host series keep their history")
	assert.False(t, f.ctrl.rates.Tracked(types.SeriesDBDiskRead))
	_, ok := f.ctrl.Summary()
	assert.False(t, ok)

	assert.Equal(t, 1, f.backend.Hits(testutil.Key("POST", "/api/benchmark/start")))
	assert.Equal(t, []string{"Starting benchmark...", "Benchmark started"}, messages(f.ctrl.LogTail()))
	assert.Equal(t, "Benchmark Started", f.rec.last().Title)
}

func TestController_CommandRejected(t *testing.T) {
	f := newFixture(t)
	f.backend.SetResponse("stop", types.OperationResponse{Success: false, Error: "benchmark is not running"})

	_, err := f.ctrl.Stop(context.Background())
	require.Error(t, err)
	_, isAPI := client.IsAPIError(err)
	assert.True(t, isAPI)

	tail := f.ctrl.LogTail()
	require.Len(t, tail, 2)
	assert.Equal(t, "Error: benchmark is not running", tail[1].Message)
	assert.Equal(t, types.LevelError, tail[1].Level)
	n := f.rec.last()
	assert.Equal(t, "Operation Failed", n.Title)
	assert.Equal(t, types.NotifyError, n.Kind)
	assert.NotEmpty(t, n.ID)
}

func TestController_LoadAndCancel(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Load(context.Background())
	require.NoError(t, err)
	p := f.ctrl.Progress()
	assert.True(t, p.Active)
	assert.True(t, p.CancelArmed)
	assert.Equal(t, "Starting...", p.Message)
	assert.Equal(t, "Data Loading", f.rec.titles()[0])

	_, err = f.ctrl.CancelLoad(context.Background())
	require.NoError(t, err)
	assert.False(t, f.ctrl.Progress().CancelArmed)
	assert.Equal(t, "Cancelling", f.rec.last().Title)
	assert.Equal(t, 1, f.backend.Hits(testutil.Key("POST", "/api/benchmark/load/cancel")))
}

func TestController_Clean(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Clean(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Data Cleaned", f.rec.last().Title)
}

func TestController_SaveConfig(t *testing.T) {
	f := newFixture(t)

	bad := types.DefaultBenchmarkConfig()
	bad.TransactionMix.Payment = 10
	_, err := f.ctrl.SaveConfig(context.Background(), &bad)
	require.Error(t, err)
	assert.Equal(t, 0, f.backend.Hits(testutil.Key("POST", "/api/benchmark/config")))
	n := f.rec.last()
	assert.Equal(t, "Invalid Configuration", n.Title)
	assert.Equal(t, "Transaction mix must total 100% (currently 67%)", n.Message)

	good := types.DefaultBenchmarkConfig()
	good.Benchmark.Warehouses = 42
	_, err = f.ctrl.SaveConfig(context.Background(), &good)
	require.NoError(t, err)
	assert.Equal(t, 42, f.ctrl.Config().Benchmark.Warehouses)
	assert.Equal(t, "Configuration Saved", f.rec.last().Title)
	assert.Contains(t, messages(f.ctrl.LogTail()), "Configuration saved successfully")

	f.backend.SetResponse("config", types.OperationResponse{Success: false, Error: "pool too large"})
	_, err = f.ctrl.SaveConfig(context.Background(), &good)
	require.Error(t, err)
	assert.Equal(t, "Save Failed", f.rec.last().Title)
	assert.Contains(t, messages(f.ctrl.LogTail()), "Failed to save config: pool too large")
}

func TestController_TestConnection(t *testing.T) {
	f := newFixture(t)
	f.backend.SetResponse("test-connection", types.OperationResponse{Success: true, Database: "MySQL 8.0"})

	_, err := f.ctrl.TestConnection(context.Background(), types.DatabaseSettings{Type: "mysql"})
	require.NoError(t, err)
	assert.Equal(t, "Connected to MySQL 8.0", f.rec.last().Message)

	f.backend.SetResponse("test-connection", types.OperationResponse{Success: false, Error: "access denied"})
	_, err = f.ctrl.TestConnection(context.Background(), types.DatabaseSettings{Type: "mysql"})
	require.Error(t, err)
	n := f.rec.last()
	assert.Equal(t, "Connection Failed", n.Title)
	assert.Equal(t, "access denied\n\nSuggestion: Check your connection settings", n.Message)
}

func TestController_ClearLogsAndViewer(t *testing.T) {
	f := newFixture(t)
	f.backend.SetLogs(testutil.LogEntries(1200))

	history, err := f.ctrl.OpenLogViewer(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 1000)
	assert.Equal(t, 1, f.backend.Hits(testutil.Key("GET", "/api/benchmark/logs")))

	require.NoError(t, f.ctrl.ClearLogs(context.Background()))
	assert.Empty(t, f.ctrl.LogHistory())
	assert.Equal(t, []string{"Logs cleared"}, messages(f.ctrl.LogTail()))
	assert.Equal(t, 1, f.backend.Hits(testutil.Key("DELETE", "/api/benchmark/logs")))
}

func TestController_RunReceivesPush(t *testing.T) {
	backend := testutil.NewBackend(t)
	cli := client.NewClient(&client.Config{BaseURL: backend.URL, RequestTimeout: 2 * time.Second})
	cfg := DefaultConfig()
	pushURL, err := cli.PushURL("/ws/metrics")
	require.NoError(t, err)
	cfg.Transport.PushURL = pushURL
	ctrl := New(cfg, cli)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool {
		return backend.Clients() == 1 && ctrl.Connection() == types.ConnOpen
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, backend.Broadcast(types.MetricSnapshot{Host: &types.HostMetrics{CPUUsage: 55}}))
	require.Eventually(t, func() bool { return len(ctrl.Series(types.SeriesHostCPU)) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, messages(ctrl.LogTail()), "WebSocket connected")

	require.NoError(t, ctrl.Close(context.Background()))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
