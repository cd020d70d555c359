// Command chronicle runs the Living Chronicle simulation: a population
// whose shared belief births and buries gods across cycling eras.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dakeena/living-chronicle/internal/config"
	"github.com/dakeena/living-chronicle/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "chronicle",
		Short:   "Living Chronicle - a mythic civilization simulation",
		Version: version,
		Long: `chronicle simulates a population whose collective belief gives rise
to gods, and lets them fade again as eras turn and faith wanes.

State is kept in a SQLite database, so a chronicle can be resumed.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().Int64("seed", 0, "Genesis seed (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and environment, then applies any
// global flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default logger. Logs go to stderr so stdout
// carries only the chronicle.
func setupLogging(cfg *config.Config, quiet bool, w io.Writer) {
	if quiet {
		slog.SetDefault(logging.Quiet(w))
		return
	}
	slog.SetDefault(logging.NewLogger(cfg.Log.Level, w))
}
