package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the restockd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "restockd",
		Short:         "Inventory reconciliation and predictive restock engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (default $CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))

	return cmd
}

// load resolves configuration and builds the logger. Flags win over file and
// environment.
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
