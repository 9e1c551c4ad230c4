package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yzsind/dbbench/pkg/types"
)

var (
	// logs 命令的 flags
	logsLimit int
	logsQuery string
	logsLevel string
	logsClear bool
)

// logsCmd 是 logs 子命令
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看或清空后端日志",
	Long:  `拉取后端持久化的日志，按关键字（不区分大小写）和级别过滤后输出。`,
	Example: `  dbbench-console logs
  dbbench-console logs --query warehouse --level error
  dbbench-console logs --clear`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsLimit, "limit", 0, "最多拉取的条数（默认使用 store.viewer_log_fetch）")
	logsCmd.Flags().StringVar(&logsQuery, "query", "", "按消息内容过滤")
	logsCmd.Flags().StringVar(&logsLevel, "level", string(types.LevelAll), "按级别过滤 (all, info, success, warn, error)")
	logsCmd.Flags().BoolVar(&logsClear, "clear", false, "清空后端日志")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("limit") {
		if logsLimit < 1 {
			return fmt.Errorf("--limit 必须大于 0")
		}
		cfg.Store.ViewerLogFetch = logsLimit
	}

	out := cmd.OutOrStdout()
	notes := io.Discard
	if logsClear {
		notes = out
	}
	sess, err := newSession(notes, sessionOptions{})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer sess.controller.Close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	if logsClear {
		return sess.controller.ClearLogs(ctx)
	}

	if _, err := sess.controller.OpenLogViewer(ctx); err != nil {
		return fmt.Errorf("获取日志失败: %w", err)
	}

	level := types.LevelAll
	if logsLevel != "" {
		level = types.ParseLogLevel(logsLevel)
	}
	for _, entry := range sess.controller.QueryLogs(logsQuery, level) {
		fmt.Fprintf(out, "[%s] %-7s %s\n", entry.Timestamp, entry.Level, entry.Message)
	}
	return nil
}
