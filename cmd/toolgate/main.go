package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolgate/internal/app"
	"toolgate/internal/infra/config"
)

type serveOptions struct {
	configPath string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := serveOptions{
		configPath: "toolgate.yaml",
	}

	root := &cobra.Command{
		Use:   "toolgate",
		Short: "Tool-discovery gateway with layered loading over aggregated backends",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to config file")

	root.AddCommand(
		newServeCmd(logger, &opts),
		newValidateCmd(&opts),
	)

	return root
}

func newServeCmd(logger *zap.Logger, opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Serve(ctx, app.ServeConfig{
				ConfigPath: opts.configPath,
			})
		},
	}
}

func newValidateCmd(opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", opts.configPath)
			return nil
		},
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}
