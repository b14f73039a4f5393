package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/azlogforwarder/internal/forwarder"
	"github.com/oriys/azlogforwarder/internal/telemetry"
)

// deliveryTimeout 单次投递请求的超时
const deliveryTimeout = 30 * time.Second

var forwardName string

// forwardCmd 执行一次转发，输入来自文件或标准输入
var forwardCmd = &cobra.Command{
	Use:   "forward [file|-]",
	Short: "Forward a single batch read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(cfg)

		var data []byte
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fw := forwarder.New(cfg.Settings,
			forwarder.WithVersion(Version),
			forwarder.WithHTTPClient(telemetry.InstrumentedHTTPClient(deliveryTimeout)),
		)
		ectx := telemetry.NewInvocation(ctx, logger, forwardName, "")
		res, err := fw.Forward(ctx, data, ectx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"invocation_id": ectx.InvocationID(),
			"status":        res.Status(),
			"records":       res.Records,
			"spans":         res.Spans,
			"logs":          res.Logs,
			"span_report":   res.SpanReport,
		})
	},
}

func init() {
	forwardCmd.Flags().StringVar(&forwardName, "name", "fnlogforwardercli", "上报为 azure.forwardername 的名称")
	rootCmd.AddCommand(forwardCmd)
}
