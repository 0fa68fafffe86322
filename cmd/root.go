// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/observability"
)

type contextKey string

// viperKey carries the command's viper instance to subcommands.
const viperKey contextKey = "viper"

// NewRootCommand builds a fresh command tree. Every call gets its own viper
// instance so flags and config from one execution never leak into the next.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:     "relist",
		Short:   "relist renews real-estate listings on the AIPartner listing-management site.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "relist"})
				return err
			}

			// Only the logger section is decoded here; the full config is
			// validated by the commands that need credentials.
			var logCfg config.LoggerConfig
			if err := v.UnmarshalKey("logger", &logCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "relist"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			observability.InitializeLogger(logCfg)
			observability.GetLogger().Info("Starting relist", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), viperKey, v))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Warn("Command canceled", zap.Error(err))
			return err
		}
		logger.Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig reads the config file, if any, and environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("RELIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}

// viperFrom returns the viper instance stored by the root command.
func viperFrom(ctx context.Context) (*viper.Viper, error) {
	v, ok := ctx.Value(viperKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, errors.New("configuration not initialized")
	}
	return v, nil
}
