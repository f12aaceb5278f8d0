package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/adapter/storage"
	"github.com/rl1809/restock-engine/internal/logger"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema for the configured SQL store",
		Long: `Apply the embedded schema migrations to the configured store.

Only mysql and postgres carry migrations. sqlite migrates itself on open and
the memory store has no schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			switch cfg.Store.Driver {
			case "mysql", "postgres":
				return storage.RunMigrations(cfg.Store.Driver, cfg.Store.DSN, log)
			case "sqlite", "memory":
				log.Info("No migrations needed", zap.String("driver", cfg.Store.Driver))
				return nil
			default:
				return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
			}
		},
	}
}
