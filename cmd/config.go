package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// config 命令的 flags
	configLocal bool
	configFile  string
)

// configCmd 是 config 子命令
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看或保存压测配置",
}

// configShowCmd 是 config show 子命令
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "显示后端的压测配置",
	Long:  `以 YAML 输出后端当前的压测配置；--local 输出控制台自身生效的配置。`,
	Example: `  dbbench-console config show
  dbbench-console config show --local > console.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configSaveCmd 是 config save 子命令
var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "保存压测配置到后端",
	Long: `读取 YAML 文件并与后端当前配置合并后保存。
事务比例之和必须为 100%，否则不会发送请求。`,
	Example: `  dbbench-console config save -f benchmark.yaml`,
	Args:    cobra.NoArgs,
	RunE:    runConfigSave,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)

	configShowCmd.Flags().BoolVar(&configLocal, "local", false, "显示控制台配置而不是后端压测配置")
	configSaveCmd.Flags().StringVarP(&configFile, "file", "f", "", "压测配置 YAML 文件")
	_ = configSaveCmd.MarkFlagRequired("file")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if configLocal {
		data, err := cfg.Serialize()
		if err != nil {
			return fmt.Errorf("序列化配置失败: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	sess, err := newSession(io.Discard, sessionOptions{})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer sess.controller.Close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	current, err := sess.client.GetBenchmarkConfig(ctx)
	if err != nil {
		return fmt.Errorf("获取配置失败: %w", err)
	}
	data, err := yaml.Marshal(current)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSave(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	sess, err := newSession(cmd.OutOrStdout(), sessionOptions{})
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	defer sess.controller.Close(context.Background())

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
	defer cancel()

	current, err := sess.client.GetBenchmarkConfig(ctx)
	if err != nil {
		return fmt.Errorf("获取配置失败: %w", err)
	}
	if err := yaml.Unmarshal(data, current); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	if _, err := sess.controller.SaveConfig(ctx, current); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	return nil
}
