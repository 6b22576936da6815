package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"surveyops/internal/config"
	"surveyops/internal/logging"
)

var (
	rootConfigPath string
	rootSchemaPath string
	rootEnvFile    string
	rootLogLevel   string
	rootLogFormat  string
	rootLogFile    string

	// appConfig is loaded once per invocation by the root pre-run hook.
	appConfig *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "surveyops",
	Short: "Survey mission progress toolkit",
	Long: "surveyops generates synthetic progress telemetry for survey drone missions, " +
		"monitors missions against the fleet backend, and replays recorded progress logs.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(rootEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", rootEnvFile, err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = rootLogLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = rootLogFormat
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Log.File = rootLogFile
		}
		log, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
		if err != nil {
			return err
		}
		appConfig, logCloser = cfg, closer
		cmd.SetContext(logging.NewContext(cmd.Context(), log))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// loadConfig reads the config file. A missing default file falls back to
// built-in defaults; a missing file named on the command line is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(rootConfigPath, rootSchemaPath)
	if err == nil {
		return cfg, nil
	}
	if cmd.Flags().Changed("config") || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootConfigPath, "config", "config/monitor.yaml", "Path to configuration YAML")
	pf.StringVar(&rootSchemaPath, "schema", "schemas/monitor.cue", "Path to CUE schema file (empty skips validation)")
	pf.StringVar(&rootEnvFile, "env-file", ".env", "Environment file loaded before the config")
	pf.StringVar(&rootLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootLogFormat, "log-format", "text", "Log format (text or json)")
	pf.StringVar(&rootLogFile, "log-file", "", "Write logs to a rotated file instead of STDERR")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
