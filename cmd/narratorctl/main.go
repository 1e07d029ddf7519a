package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/logging"
	"github.com/loqalabs/loqa-narrator/internal/runtime"
)

var version = "0.1.0-dev"

type options struct {
	configPath string
	envPath    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "narratorctl",
		Short:         "Read, translate and narrate email from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "narrator.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "Path to an optional dotenv file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newRecentCmd(opts),
		newExtractCmd(opts),
		newTranslateCmd(opts),
		newNarrateCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// load reads dotenv and config, then builds the narration graph. Callers
// must Close the graph.
func (o *options) load(ctx context.Context) (*runtime.Graph, config.Config, *slog.Logger, error) {
	if err := godotenv.Load(o.envPath); err != nil && !os.IsNotExist(err) {
		return nil, config.Config{}, nil, fmt.Errorf("load %s: %w", o.envPath, err)
	}
	path := o.configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, cfg, nil, err
	}
	telemetry := cfg.Telemetry
	telemetry.LogFormat = "text"
	telemetry.LogLevel = o.logLevel
	logger := logging.New(telemetry, os.Stderr)

	g, err := runtime.Build(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, nil, err
	}
	return g, cfg, logger, nil
}
