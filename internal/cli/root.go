// Package cli implements the minsar-sub command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/geodesymiami/minsar-sub000/internal/config"
	"github.com/geodesymiami/minsar-sub000/internal/logging"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// defaultConfigPath returns the config file read when --config is not
// given, checking the MINSAR_CONFIG env var. Empty means compiled
// defaults plus environment only.
func defaultConfigPath() string {
	return os.Getenv("MINSAR_CONFIG")
}

// NewRootCmd creates the root cobra command for minsar-sub.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "minsar-sub",
		Short: "minsar-sub — batch job orchestrator for InSAR processing runs",
		Long: `minsar-sub discovers the run_NN_* job scripts of a processing run and
drives them through the cluster scheduler step by step: admission-limited
sbatch submission, state polling, walltime escalation on timeout, and
per-step output validation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig, flagEnvFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "Config file (or MINSAR_CONFIG env)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Site env file loaded before MINSAR_* overrides")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newPlanCmd(),
		newHistoryCmd(),
	)

	return root
}

// resolveWorkDir picks the run-files directory: the positional argument
// when given, else the configured work_dir, else the current directory.
func resolveWorkDir(args []string) (string, error) {
	dir := cfg.WorkDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving workdir: %w", err)
	}
	return abs, nil
}
