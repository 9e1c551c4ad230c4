package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yzsind/dbbench/pkg/types"
)

var statusJSON bool

// statusCmd 是 status 子命令
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看压测后端状态",
	Long:  `读取当前指标快照，显示运行状态、可用操作和最新的吞吐数据。`,
	Example: `  dbbench-console status
  dbbench-console status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "以 JSON 输出快照")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(io.Discard, sessionOptions{})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer sess.controller.Close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	snap, err := sess.client.GetCurrentMetrics(ctx)
	if err != nil {
		return fmt.Errorf("获取状态失败: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		data, err := types.Marshal(snap)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	printSnapshot(out, snap)
	return nil
}

func printSnapshot(out io.Writer, snap *types.MetricSnapshot) {
	status := snap.Status
	if status.IsZero() {
		status = types.StatusIdle
	}
	flags := types.CapabilitiesFor(status)

	fmt.Fprintf(out, "Status:     %s\n", status)
	fmt.Fprintf(out, "Actions:    start=%v stop=%v load=%v clean=%v config=%v\n",
		flags.CanStart, flags.CanStop, flags.CanLoad, flags.CanClean, flags.CanEditConfig)

	if snap.Loading || status == types.StatusLoading {
		progress := 0
		if snap.LoadProgress != nil {
			progress = *snap.LoadProgress
		}
		fmt.Fprintf(out, "Load:       %d%% %s\n", progress, snap.LoadMessage)
	}

	if tx := snap.Transaction; tx != nil {
		fmt.Fprintf(out, "TPS:        %.2f\n", tx.TPS)
		fmt.Fprintf(out, "Total:      %d (success %d, failure %d, %.1f%%)\n",
			tx.TotalTransactions, tx.TotalSuccess, tx.TotalFailure, tx.OverallSuccessRate)
		fmt.Fprintf(out, "Latency:    %.2f ms avg\n", tx.AvgLatencyMs)
		fmt.Fprintf(out, "Elapsed:    %ds\n", tx.ElapsedSeconds)
	}
	if host := snap.Host; host != nil {
		fmt.Fprintf(out, "Host CPU:   %.1f%%  memory %.1f%%\n", host.CPUUsage, host.MemoryUsage)
	}
	if db := snap.Database; db != nil {
		fmt.Fprintf(out, "DB:         connections %.0f, lock waits %.0f\n", db.ActiveConnections, db.LockWaits)
	}
}
