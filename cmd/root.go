// Package cmd 提供 dbbench-console CLI 的命令实现
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yzsind/dbbench/api/rest/client"
	"github.com/yzsind/dbbench/internal/config"
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/sink/builtin"
	"github.com/yzsind/dbbench/internal/sink/console"
	"github.com/yzsind/dbbench/internal/syncer"
	"github.com/yzsind/dbbench/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
     _ _     _                     _
  __| | |__ | |__   ___ _ __   ___| |__   dbbench console %s
 / _' | '_ \| '_ \ / _ \ '_ \ / __| '_ \
| (_| | |_) | |_) |  __/ | | | (__| | | |
 \__,_|_.__/|_.__/ \___|_| |_|\___|_| |_|
`
)

var (
	// 全局配置
	cfgFile   string
	baseURL   string
	overrides []string
	debug     bool
	quiet     bool
	noColor   bool

	// 当前命令加载的配置
	cfg *config.Config
	log *zap.Logger
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "dbbench-console",
	Short: "dbbench 压测控制台",
	Long: `dbbench-console 连接 dbbench 压测后端，实时同步吞吐、主机与数据库指标、
运行状态和日志，并可发起启动、停止、装载和清理等操作。`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "压测后端地址 (例如 http://localhost:8080)")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "覆盖配置项 key.path=value，可重复")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "禁用彩色输出")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	args, err := parseOverrides(overrides)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-url") {
		args["server.base_url"] = baseURL
	}
	if debug {
		args["logging.level"] = "debug"
	}

	loader := config.NewLoader().WithCmdArgs(args)
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}

	loaded, err := loader.LoadAndValidate()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	cfg = loaded

	logger.Init(&cfg.Logging)
	logger.SetLevel(cfg.Logging.Level)
	log = logger.Named("cli")
	return nil
}

func parseOverrides(values []string) (map[string]string, error) {
	args := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("无效的 --set 参数 %q，期望 key.path=value", kv)
		}
		args[strings.TrimSpace(key)] = value
	}
	return args, nil
}

// session bundles the pieces a command needs to talk to the backend.
type session struct {
	client     *client.Client
	controller *syncer.Controller
	sinks      *sink.Manager
}

type sessionOptions struct {
	// configuredSinks adds the sinks declared in the configuration.
	configuredSinks bool
	// panels prints the transaction, host and database panels.
	panels bool
}

// newSession builds the REST client, the sink fan-out and the controller.
// The console sink writes to out.
func newSession(out io.Writer, opts sessionOptions) (*session, error) {
	registry, err := builtin.NewRegistry()
	if err != nil {
		return nil, err
	}
	sinks := sink.NewManager(registry, logger.Named("sink"))

	if !quiet {
		consoleCfg := console.DefaultConfig()
		consoleCfg.ColorOutput = !noColor
		consoleCfg.Writer = out
		consoleCfg.ShowSeries = opts.configuredSinks
		consoleCfg.ShowPanels = opts.panels
		sinks.Add(console.New(consoleCfg))
	}
	if opts.configuredSinks {
		for i := range cfg.Sinks {
			if cfg.Sinks[i].Type == sink.TypeConsole {
				continue
			}
			if err := sinks.AddFromConfig(&cfg.Sinks[i]); err != nil {
				return nil, err
			}
		}
	}

	c := client.NewClient(cfg.ClientConfig())
	pushURL, err := c.PushURL(cfg.Transport.PushPath)
	if err != nil {
		return nil, err
	}

	controller := syncer.New(cfg.SyncerConfig(pushURL), c,
		syncer.WithLogger(logger.Named("syncer")),
		syncer.WithSinks(sinks),
	)
	return &session{client: c, controller: controller, sinks: sinks}, nil
}
