package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/app"
	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/logger"
)

type PublishOptions struct {
	*RootOptions
	SKU             string
	OrderQuantity   int
	RestockQuantity int
	Velocity        float64
}

func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an inbound event onto the configured bus",
		Long: `Publish an inbound event onto the configured bus.

With the amqp transport the event goes to the broker for a running engine.
With the local transport this process starts the engine against the
configured store, delivers the event and waits for it to be handled.

Example:
  restockd publish order --sku SKU-1 --quantity 2
  restockd publish prediction --sku SKU-1 --velocity 3
  restockd publish restock --sku SKU-1 --quantity 100`,
	}

	cmd.PersistentFlags().StringVar(&opts.SKU, "sku", "", "SKU the event refers to")

	order := &cobra.Command{
		Use:   "order",
		Short: "Publish an order event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			event := domain.OrderEvent{SKU: opts.SKU, Quantity: opts.OrderQuantity}
			return publish(cmd.Context(), opts, event, func(c config.ChannelsConfig) string { return c.Orders })
		},
	}
	order.Flags().IntVar(&opts.OrderQuantity, "quantity", 1, "units sold")

	prediction := &cobra.Command{
		Use:   "prediction",
		Short: "Publish a predicted sales velocity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			event := domain.AIPredictionEvent{SKU: opts.SKU, VelocityPerMinute: opts.Velocity}
			return publish(cmd.Context(), opts, event, func(c config.ChannelsConfig) string { return c.Predictions })
		},
	}
	prediction.Flags().Float64Var(&opts.Velocity, "velocity", 0, "predicted units per minute")

	restock := &cobra.Command{
		Use:   "restock",
		Short: "Publish a warehouse delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			event := domain.RestockDeliveredEvent{SKU: opts.SKU, Quantity: opts.RestockQuantity}
			return publish(cmd.Context(), opts, event, func(c config.ChannelsConfig) string { return c.Restock })
		},
	}
	restock.Flags().IntVar(&opts.RestockQuantity, "quantity", 0, "units delivered")

	cmd.AddCommand(order, prediction, restock)
	return cmd
}

type validator interface {
	Validate() error
}

func publish(parent context.Context, opts *PublishOptions, event validator, channelOf func(config.ChannelsConfig) string) error {
	if err := event.Validate(); err != nil {
		return err
	}

	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	// The local bus drains on Close, so the event is handled before exit.
	if cfg.Transport == "local" {
		if err := a.Start(ctx); err != nil {
			a.Close()
			return err
		}
	}

	channel := channelOf(cfg.Messaging.Channels)
	if err := a.Bus.Publish(ctx, channel, event); err != nil {
		a.Close()
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	log.Info("Event published", zap.String("channel", channel), zap.String("transport", cfg.Transport))

	cancel()
	a.Close()
	return nil
}
