// Package cmd defines and implements the CLI commands for the ccpipe executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/app"
	"github.com/JakeFAU/cc-text-pipeline/internal/batcher"
	"github.com/JakeFAU/cc-text-pipeline/internal/config"
	"github.com/JakeFAU/cc-text-pipeline/internal/dispatcher"
	"github.com/JakeFAU/cc-text-pipeline/internal/logging"
	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
type App interface {
	Close() error
	Config() config.Config
	Logger() *zap.Logger
	Metrics() *metrics.Prometheus
	NewProducer(ctx context.Context, dataset string) (*batcher.Producer, error)
	NewDispatcher(ctx context.Context, n int) (*dispatcher.Dispatcher, error)
}

// newApp is the application factory. Tests swap it for one with an
// in-process queue.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The returned shutdown
// func closes the App built by whichever subcommand ran, even on failure.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile  string
		instance App
	)
	cmd := &cobra.Command{
		Use:   "ccpipe",
		Short: "Extracts English web text from Common Crawl archives.",
		Long: `ccpipe scans a Common Crawl cluster index, publishes batches of
candidate records to a work queue, and runs workers that fetch, extract,
filter and store the text as Parquet files.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			instance = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newBatchCmd(), newWorkCmd())

	shutdown := func() {
		if instance == nil {
			return
		}
		if err := instance.Close(); err != nil {
			instance.Logger().Warn("shutdown reported errors", zap.Error(err))
		}
		instance = nil
	}
	return cmd, shutdown
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, shutdown := newRootCmd()
	err := root.ExecuteContext(ctx)
	shutdown()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
