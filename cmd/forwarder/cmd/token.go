package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/azlogforwarder/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
)

// keyCmd 生成新的函数密钥
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generate a function key for the HTTP trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, hash, err := auth.GenerateFunctionKey()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key:    %s\nSHA256: %s\n", key, hash)
		return nil
	},
}

// tokenCmd 使用配置中的 JWT 密钥签发令牌
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a JWT for the HTTP trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}
		token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration).Generate(tokenSubject, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "forwarder-client", "令牌主体")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "writer", "令牌角色")
	rootCmd.AddCommand(keyCmd, tokenCmd)
}
