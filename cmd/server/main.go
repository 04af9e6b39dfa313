package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eGGnogSC/qbsync/config"
	"github.com/eGGnogSC/qbsync/infrastructure"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "qbsync",
		Usage: "sync clients, invoices and payments with QuickBooks Online",
		Commands: []*cli.Command{
			serveCmd(),
			batchCmd("sync-clients", "push every client of a user to QuickBooks", func(ctx context.Context, c *infrastructure.Container, userID uint) (any, error) {
				return c.CustomerService.SyncAllClients(ctx, userID)
			}),
			batchCmd("sync-invoices", "push every eligible invoice of a user to QuickBooks", func(ctx context.Context, c *infrastructure.Container, userID uint) (any, error) {
				return c.InvoiceService.SyncAllInvoices(ctx, userID)
			}),
			batchCmd("poll-payments", "import a user's new QuickBooks payments once", func(ctx context.Context, c *infrastructure.Container, userID uint) (any, error) {
				return c.PaymentService.PollPayments(ctx, userID)
			}),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the payment poller",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.LogLevel)

			container, err := infrastructure.NewContainer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer container.Shutdown()

			if err := container.StartScheduler(); err != nil {
				return err
			}

			server := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      container.Router(),
				ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.Timeout) * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.WithField("port", cfg.Server.Port).Info("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-quit:
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
}

type batchFunc func(ctx context.Context, c *infrastructure.Container, userID uint) (any, error)

// batchCmd runs one synchronous operation for a user and prints its result as JSON
func batchCmd(name, usage string, run batchFunc) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "local user id",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			userID := cmd.Int("user")
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id, got %d", userID)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.LogLevel)

			container, err := infrastructure.NewContainer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer container.Shutdown()

			result, err := run(ctx, container, uint(userID))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
