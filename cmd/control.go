package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/internal/syncer"
	"github.com/yzsind/dbbench/pkg/types"
)

// operation is a one-shot backend command.
type operation func(ctx context.Context, sess *session) (*types.OperationResponse, error)

// controllerOp adapts a controller method expression such as
// (*syncer.Controller).Start.
func controllerOp(method func(*syncer.Controller, context.Context) (*types.OperationResponse, error)) operation {
	return func(ctx context.Context, sess *session) (*types.OperationResponse, error) {
		return method(sess.controller, ctx)
	}
}

func newOperationCmd(use, short, long string, op operation) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOperation(cmd, use, op)
		},
	}
}

func runOperation(cmd *cobra.Command, name string, op operation) error {
	sess, err := newSession(cmd.OutOrStdout(), sessionOptions{})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer func() {
		if err := sess.controller.Close(context.Background()); err != nil {
			log.Warn("close controller failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	resp, err := op(ctx, sess)
	if err != nil {
		return fmt.Errorf("%s 失败: %w", name, err)
	}
	if resp != nil && resp.Status != "" && !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", types.ParseStatus(string(resp.Status)))
	}
	return nil
}

// testConnection 命令的 flags
var (
	tcType     string
	tcJdbcURL  string
	tcUsername string
	tcPassword string
	tcPoolSize int
)

// testConnectionCmd 是 test-connection 子命令
var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "测试数据库连接",
	Long:  `使用后端当前配置的数据库设置测试连接，命令行参数覆盖对应字段。`,
	Example: `  dbbench-console test-connection
  dbbench-console test-connection --jdbc-url jdbc:mysql://db:3306/tpcc --username bench`,
	Args: cobra.NoArgs,
	RunE: runTestConnection,
}

func init() {
	rootCmd.AddCommand(newOperationCmd("start", "启动压测", "启动一次压测运行，运行前清空本次运行相关的曲线和速率状态。",
		controllerOp((*syncer.Controller).Start)))
	rootCmd.AddCommand(newOperationCmd("stop", "停止压测", "停止正在运行的压测。",
		controllerOp((*syncer.Controller).Stop)))
	rootCmd.AddCommand(newOperationCmd("load", "装载测试数据", "开始装载 TPC-C 测试数据，可能需要几分钟，进度可通过 watch 查看。",
		controllerOp((*syncer.Controller).Load)))
	rootCmd.AddCommand(newOperationCmd("cancel-load", "取消数据装载", "取消正在进行的数据装载。",
		controllerOp((*syncer.Controller).CancelLoad)))
	rootCmd.AddCommand(newOperationCmd("clean", "清理测试数据", "删除所有 TPC-C 测试表。",
		controllerOp((*syncer.Controller).Clean)))

	rootCmd.AddCommand(testConnectionCmd)
	testConnectionCmd.Flags().StringVar(&tcType, "type", "", "数据库类型 (mysql, postgresql, oracle, ...)")
	testConnectionCmd.Flags().StringVar(&tcJdbcURL, "jdbc-url", "", "JDBC 连接串")
	testConnectionCmd.Flags().StringVar(&tcUsername, "username", "", "用户名")
	testConnectionCmd.Flags().StringVar(&tcPassword, "password", "", "密码")
	testConnectionCmd.Flags().IntVar(&tcPoolSize, "pool-size", 0, "连接池大小")
}

func runTestConnection(cmd *cobra.Command, _ []string) error {
	return runOperation(cmd, "test-connection", func(ctx context.Context, sess *session) (*types.OperationResponse, error) {
		db, err := connectionSettings(ctx, cmd, sess)
		if err != nil {
			return nil, err
		}
		resp, err := sess.controller.TestConnection(ctx, db)
		if err == nil && resp != nil && resp.ResponseTime > 0 && !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Response time: %d ms\n", resp.ResponseTime)
		}
		return resp, err
	})
}

// connectionSettings starts from the backend's database settings and applies
// the flags that were set.
func connectionSettings(ctx context.Context, cmd *cobra.Command, sess *session) (types.DatabaseSettings, error) {
	current, err := sess.client.GetBenchmarkConfig(ctx)
	if err != nil {
		return types.DatabaseSettings{}, fmt.Errorf("获取当前配置失败: %w", err)
	}

	db := current.Database
	flags := cmd.Flags()
	if flags.Changed("type") {
		db.Type = strings.ToLower(tcType)
	}
	if flags.Changed("jdbc-url") {
		db.JdbcURL = tcJdbcURL
	}
	if flags.Changed("username") {
		db.Username = tcUsername
	}
	if flags.Changed("password") {
		db.Password = tcPassword
	}
	if flags.Changed("pool-size") {
		db.PoolSize = tcPoolSize
	}
	return db, nil
}
