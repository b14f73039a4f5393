package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oriys/azlogforwarder/internal/forwarder"
	"github.com/oriys/azlogforwarder/internal/processor"
)

// validateCmd 检查配置是否足以运行转发管道
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate forwarder configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fw := forwarder.New(cfg.Settings, forwarder.WithVersion(Version))
		if err := fw.Validate(); err != nil {
			return fmt.Errorf("%w (supported source types: %s)", err, strings.Join(processor.Types(), ", "))
		}

		s := fw.Settings()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Source type:     %s\n", s.SourceServiceType)
		fmt.Fprintf(out, "Log endpoint:    %s\n", s.LogEndpoint)
		fmt.Fprintf(out, "Trace endpoint:  %s\n", s.TraceEndpoint)
		fmt.Fprintf(out, "Forward tracing: %t\n", s.ForwardTracing)
		fmt.Fprintf(out, "Max payload:     %d bytes\n", s.MaxPayloadSizeBytes)
		fmt.Fprintf(out, "Retries:         %d x %s\n", s.MaxRetries, s.RetryInterval())
		fmt.Fprintln(out, "Configuration OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
