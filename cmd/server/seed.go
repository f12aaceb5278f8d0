package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/app"
	"github.com/rl1809/restock-engine/internal/logger"
)

type SeedOptions struct {
	*RootOptions
	SKU      string
	Quantity int
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Set the on-hand quantity of a SKU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.SKU == "" {
				return errors.New("--sku is required")
			}
			if opts.Quantity < 0 {
				return errors.New("--quantity must not be negative")
			}

			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			if cfg.Store.Driver == "memory" {
				log.Warn("Seeding the memory store has no effect outside this process")
			}

			db, closeDB, err := app.OpenStore(cfg.Store, log)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			record, err := db.SetQuantity(ctx, opts.SKU, opts.Quantity)
			if err != nil {
				return err
			}
			log.Info("Seeded inventory", zap.String("sku", record.SKU), zap.Int("quantity", record.Quantity))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}

	cmd.Flags().StringVar(&opts.SKU, "sku", "", "SKU to seed")
	cmd.Flags().IntVar(&opts.Quantity, "quantity", 0, "on-hand quantity")

	return cmd
}
