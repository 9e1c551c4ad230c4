package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	promsink "github.com/yzsind/dbbench/internal/sink/prometheus"
)

var (
	// watch 命令的 flags
	watchPanels  bool
	watchMetrics string
)

// watchCmd 是 watch 子命令
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "实时同步压测指标、状态和日志",
	Long: `连接压测后端，加载初始状态后通过 WebSocket 接收实时推送，
推送断开时自动切换到轮询并定时重连。

输出目标由配置文件中的 sinks 决定（jsonl、prometheus、webhook），
终端输出始终开启（--quiet 除外）。`,
	Example: `  # 使用默认配置
  dbbench-console watch

  # 指定后端地址并显示面板
  dbbench-console watch --base-url http://bench:8080 --panels

  # 暴露 Prometheus 指标
  dbbench-console watch --metrics-address :9464`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchPanels, "panels", false, "显示事务、主机和数据库面板")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics-address", "", "Prometheus /metrics 监听地址，设置后启用")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("metrics-address") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = watchMetrics
	}

	sess, err := newSession(cmd.OutOrStdout(), sessionOptions{configuredSinks: true, panels: watchPanels})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsApp *fiber.App
	if cfg.Metrics.Enabled {
		metricsApp = serveMetrics(sess, cfg.Metrics.Address)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), Banner, Version)
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "  后端地址: %s\n", cfg.Server.BaseURL)
		if metricsApp != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  指标地址: %s/metrics\n", cfg.Metrics.Address)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	if err := sess.controller.Bootstrap(ctx); err != nil {
		log.Warn("initial state unavailable, waiting for push", zap.Error(err))
	}

	runErr := sess.controller.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsApp != nil {
		if err := metricsApp.ShutdownWithContext(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := sess.controller.Close(shutdownCtx); err != nil {
		log.Warn("close sinks failed", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), "已停止。")
	}
	return nil
}

// serveMetrics exposes the Prometheus sink on addr. A sink is added when the
// configuration did not declare one.
func serveMetrics(sess *session, addr string) *fiber.App {
	var exporter *promsink.Sink
	for _, s := range sess.sinks.Sinks() {
		if p, ok := s.(*promsink.Sink); ok {
			exporter = p
			break
		}
	}
	if exporter == nil {
		exporter = promsink.New(nil)
		sess.sinks.Add(exporter)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(exporter.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     sess.controller.Status(),
			"connection": sess.controller.Connection(),
		})
	})

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Error("metrics server failed", zap.String("address", addr), zap.Error(err))
		}
	}()
	return app
}
