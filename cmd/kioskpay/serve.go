package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alovak/kioskpay/terminal"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the payment HTTP server",
		Long: `Start the payment HTTP server in front of the terminal.

The configuration file is optional; environment variables such as
REPO_BACKEND, DB_DSN, TL3800_HOST and TL3800_TERMINAL_ID override it.

Examples:
  kioskpay serve --config kioskpay.yaml
  TL3800_HOST=192.168.0.40:5555 DB_DSN=postgres://... kioskpay serve`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to a YAML config file")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	config, err := terminal.LoadConfig(path)
	if err != nil {
		return err
	}

	app := terminal.NewApp(logger, config)
	if err := app.Start(); err != nil {
		return fmt.Errorf("starting app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	app.Shutdown()
	return nil
}
