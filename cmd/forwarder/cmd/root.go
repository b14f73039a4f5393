// Package cmd 包含转发器命令行的所有子命令
// 使用 cobra 构建命令行接口，viper 负责标志与环境变量的合并
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/telemetry"
)

// rootCmd 是 CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "forwarder",
	Short: "Forward Azure telemetry to New Relic",
	Long: `forwarder 把 Azure 服务产生的日志批次转换为 New Relic 日志和 Span 并投递。

使用示例:
  # 启动常驻服务（HTTP / NATS / Redis / Blob 触发器）
  forwarder serve --config /etc/forwarder/config.yaml

  # 转发单个文件
  forwarder forward records.json

  # 从标准输入转发
  cat records.json | forwarder forward -`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "配置文件路径（也可通过 NR_CONFIG 设置）")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别（debug、info、warn、error）")
	rootCmd.PersistentFlags().String("log-format", "", "日志格式（json、text）")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// 环境变量格式：NR_<KEY>，如 NR_CONFIG
	viper.SetEnvPrefix("NR")
	viper.AutomaticEnv()
}

// loadConfig 按优先级加载配置：命令行标志 > 环境变量 > 配置文件 > 默认值
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("log_level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("log_format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return telemetry.NewLogger(cfg.Logging, os.Stderr)
}
