package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/restock-engine/internal/adapter/handler"
	"github.com/rl1809/restock-engine/internal/app"
	"github.com/rl1809/restock-engine/internal/logger"
)

const shutdownTimeout = 5 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumeCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	if err := a.Start(consumeCtx); err != nil {
		a.Close()
		return err
	}

	web := fiber.New(fiber.Config{
		AppName:               "Restock Engine",
		ServerHeader:          "Fiber",
		DisableStartupMessage: true,
	})
	web.Use(recover.New())
	web.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	web.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	a.HTTP.Register(web)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}
	grpcServer := grpc.NewServer()
	handler.RegisterInventoryQueryServer(grpcServer, a.GRPC)

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", zap.String("address", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("address", cfg.HTTP.Addr))
		if err := web.Listen(cfg.HTTP.Addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-errCh:
		log.Error("Server failed, shutting down", zap.Error(err))
	}

	// Open event streams block Shutdown until they end.
	a.HTTP.Close()
	if shutdownErr := web.ShutdownWithTimeout(shutdownTimeout); shutdownErr != nil {
		log.Error("Error during HTTP shutdown", zap.Error(shutdownErr))
	}
	grpcServer.GracefulStop()

	stopConsumers()
	a.Close()
	log.Info("Server stopped")
	return err
}
