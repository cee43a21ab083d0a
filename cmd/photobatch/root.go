package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/photo-batch-client/internal/config"
	"github.com/Sternrassler/photo-batch-client/pkg/logging"
)

type contextKey struct{}

// newRootCmd builds the command tree. All configuration is resolved through v.
func newRootCmd(v *viper.Viper) *cobra.Command {
	config.Defaults(v)
	config.BindEnv(v)

	rootCmd := &cobra.Command{
		Use:           "photobatch",
		Short:         "Bulk-edit photos on a photo service",
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `photobatch loads a selection of photos from a photo service, shows their
aggregated field values, and applies one edit to all of them at once.

Settings can be given as flags or as PHOTOBATCH_* environment variables,
e.g. PHOTOBATCH_API_URL or PHOTOBATCH_TOKEN.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := logging.Setup(logging.Config{
				Level:  cfg.LogLevel,
				Pretty: cfg.LogPretty,
				Output: cmd.ErrOrStderr(),
			})
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, &cfg))
			logger.Debug().Str("api_url", cfg.APIURL).Bool("redis", cfg.UsesRedis()).Msg("Configuration loaded")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyAPIURL, v.GetString(config.KeyAPIURL), "Base URL of the photo service")
	flags.String(config.KeyToken, "", "API access token")
	flags.String(config.KeyRedisAddr, "", "Redis address for the shared catalog cache and activity mirror (optional)")
	flags.Int(config.KeyRedisDB, 0, "Redis database number")
	flags.String(config.KeyLogLevel, string(logging.LevelInfo), "Log level (debug, info, warn, error)")
	flags.Bool(config.KeyLogPretty, false, "Human-readable log output")
	flags.String(config.KeyMetricsAddr, "", "Address to serve Prometheus metrics on while running (optional)")
	flags.Int(config.KeyChunkSize, v.GetInt(config.KeyChunkSize), "Maximum photos per fetch request")
	flags.Duration(config.KeyCatalogTTL, v.GetDuration(config.KeyCatalogTTL), "How long a cached album catalog is used without revalidation")
	flags.Duration(config.KeyIdleDelay, v.GetDuration(config.KeyIdleDelay), "Quiet period that counts as network idle")
	flags.Duration(config.KeyWaitTimeout, v.GetDuration(config.KeyWaitTimeout), "Maximum time to wait for network idle after a save")

	for _, key := range []string{
		config.KeyAPIURL, config.KeyToken, config.KeyRedisAddr, config.KeyRedisDB,
		config.KeyLogLevel, config.KeyLogPretty, config.KeyMetricsAddr,
		config.KeyChunkSize, config.KeyCatalogTTL, config.KeyIdleDelay, config.KeyWaitTimeout,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", key, err))
		}
	}

	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

// configFrom returns the configuration stored by the root command.
func configFrom(cmd *cobra.Command) config.Config {
	if cfg, ok := cmd.Context().Value(contextKey{}).(*config.Config); ok {
		return *cfg
	}
	return config.Config{}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func commandLogger(name string) zerolog.Logger {
	return logging.NewLogger("cli").With().Str("command", name).Logger()
}
