package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/glimte/hostbridge/config"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "hostbridge",
		Short: "Talk to an embedding host over its raw message channel",
		Long: `hostbridge sends correlated requests to a host process and listens to its
push events. Settings are read from HOSTBRIDGE_* environment variables.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newDemoCmd(flags),
		newSendCmd(flags),
		newListenCmd(flags),
		newReplCmd(flags),
	)

	return rootCmd
}

// loadSettings reads the environment and builds the logger all commands share
func loadSettings(flags *globalFlags) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
