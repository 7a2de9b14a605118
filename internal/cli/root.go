package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/autoacdc/internal/control"
	"github.com/vietddude/autoacdc/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "autoacdc",
	Short: "Automatic recovery of failed workflow tasks",
	Long: `autoacdc creates recovery workflows for failed tasks and assigns them
to sites that hold the missing input.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	loaded, err := loadConfig(cmd)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return err
	}
	cfg = loaded

	// Setup logging
	level := logLevel(cfg.Logging.Level, isDebug)
	if err := initLogging(os.Stderr, cfg.Logging.Format, level); err != nil {
		slog.Error("Failed to set up logging", "error", err)
		return err
	}
	return nil
}

// loadConfig falls back to built-in defaults when the default config file is absent.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
}

// withApp builds the application, runs fn and exports metrics whatever fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *control.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		_ = app.Close()
	}()

	runErr := fn(ctx, app)
	if err := app.WriteMetrics(); err != nil {
		slog.Warn("Failed to export metrics", "error", err)
	}
	return runErr
}
