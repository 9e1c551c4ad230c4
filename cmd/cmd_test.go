package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzsind/dbbench/internal/testutil"
	"github.com/yzsind/dbbench/pkg/types"
)

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := GetRootCmd()
	t.Cleanup(func() { resetFlags(root) })

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color"))
	err := root.Execute()
	return out.String(), err
}

func TestParseOverrides(t *testing.T) {
	args, err := parseOverrides([]string{"server.base_url=http://x:1", "store.log_tail= 5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"server.base_url": "http://x:1", "store.log_tail": " 5"}, args)

	_, err = parseOverrides([]string{"server.base_url"})
	assert.Error(t, err)
	_, err = parseOverrides([]string{"=value"})
	assert.Error(t, err)
}

func TestInvalidConfigOverride(t *testing.T) {
	_, err := execute(t, "status", "--set", "store.series_capacity=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.series_capacity")
}

func TestStatusCommand(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetMetrics(map[string]any{
		"status":      "RUNNING",
		"transaction": map[string]any{"tps": 321.5, "totalTransactions": 1000, "totalSuccess": 990, "totalFailure": 10},
	})

	out, err := execute(t, "status", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:     RUNNING")
	assert.Contains(t, out, "stop=true")
	assert.Contains(t, out, "TPS:        321.50")
}

func TestStatusCommand_JSON(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetMetrics(map[string]any{"status": "LOADED"})

	out, err := execute(t, "status", "--json", "--base-url", backend.URL)
	require.NoError(t, err)

	var snap types.MetricSnapshot
	require.NoError(t, types.Unmarshal([]byte(out), &snap))
	assert.Equal(t, types.StatusLoaded, snap.Status)
}

func TestStartCommand(t *testing.T) {
	backend := testutil.NewBackend(t)

	out, err := execute(t, "start", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Starting benchmark...")
	assert.Contains(t, out, "start ok")
	assert.Contains(t, out, "[Benchmark Started]")
	assert.Equal(t, 1, backend.Hits(testutil.Key("post", "/api/benchmark/start")))
}

func TestStartCommand_Rejected(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetResponse("start", types.OperationResponse{Success: false, Error: "data not loaded"})

	out, err := execute(t, "start", "--base-url", backend.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data not loaded")
	assert.Contains(t, out, "[Operation Failed] data not loaded")
}

func TestLifecycleCommands(t *testing.T) {
	backend := testutil.NewBackend(t)

	for cmd, path := range map[string]string{
		"stop":        "/api/benchmark/stop",
		"load":        "/api/benchmark/load",
		"cancel-load": "/api/benchmark/load/cancel",
		"clean":       "/api/benchmark/clean",
	} {
		_, err := execute(t, cmd, "--base-url", backend.URL)
		require.NoError(t, err, cmd)
		assert.Equal(t, 1, backend.Hits(testutil.Key("post", path)), cmd)
	}
}

func TestLogsCommand(t *testing.T) {
	backend := testutil.NewBackend(t)
	logs := testutil.LogEntries(12)
	logs[11].Level = types.LevelError
	backend.SetLogs(logs)

	out, err := execute(t, "logs", "--query", "ENTRY 1", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "entry 1\n")
	assert.Contains(t, out, "entry 10")
	assert.Contains(t, out, "entry 11")
	assert.NotContains(t, out, "entry 2")

	out, err = execute(t, "logs", "--level", "error", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "entry 11")
	assert.NotContains(t, out, "entry 10")

	out, err = execute(t, "logs", "--limit", "2", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "entry 10")
	assert.NotContains(t, out, "entry 9")
}

func TestLogsCommand_Clear(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetLogs(testutil.LogEntries(3))

	out, err := execute(t, "logs", "--clear", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Logs cleared")
	assert.Equal(t, 1, backend.Hits(testutil.Key("delete", "/api/benchmark/logs")))
}

func TestConfigShowCommand(t *testing.T) {
	backend := testutil.NewBackend(t)

	out, err := execute(t, "config", "show", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "warehouses: 10")
	assert.Contains(t, out, "new_order: 45")

	out, err = execute(t, "config", "show", "--local", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: "+backend.URL)
	assert.Contains(t, out, "push_path: /ws/metrics")
}

func TestConfigSaveCommand(t *testing.T) {
	backend := testutil.NewBackend(t)
	path := filepath.Join(t.TempDir(), "benchmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte("benchmark:\n  terminals: 8\n"), 0644))

	out, err := execute(t, "config", "save", "-f", path, "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved successfully")

	var sent types.BenchmarkConfig
	require.NoError(t, types.Unmarshal(backend.Body(testutil.Key("post", "/api/benchmark/config")), &sent))
	assert.Equal(t, 8, sent.Benchmark.Terminals)
	assert.Equal(t, 10, sent.Benchmark.Warehouses)
}

func TestConfigSaveCommand_InvalidMix(t *testing.T) {
	backend := testutil.NewBackend(t)
	path := filepath.Join(t.TempDir(), "benchmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transaction_mix:\n  new_order: 10\n"), 0644))

	out, err := execute(t, "config", "save", "-f", path, "--base-url", backend.URL)
	require.Error(t, err)
	assert.Contains(t, out, "[Invalid Configuration] Transaction mix must total 100% (currently 65%)")
	assert.Equal(t, 0, backend.Hits(testutil.Key("post", "/api/benchmark/config")))
}

func TestTestConnectionCommand(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.SetResponse("test-connection", types.OperationResponse{Success: true, Database: "PostgreSQL 16", ResponseTime: 7})

	out, err := execute(t, "test-connection", "--jdbc-url", "jdbc:postgresql://db/tpcc", "--type", "PostgreSQL", "--base-url", backend.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "[Connection Successful] Connected to PostgreSQL 16")
	assert.Contains(t, out, "Response time: 7 ms")

	var req types.ConnectionTestRequest
	require.NoError(t, types.Unmarshal(backend.Body(testutil.Key("post", "/api/benchmark/test-connection")), &req))
	assert.Equal(t, "jdbc:postgresql://db/tpcc", req.Database.JdbcURL)
	assert.Equal(t, "postgresql", req.Database.Type)
	assert.Equal(t, 50, req.Database.PoolSize)
}
