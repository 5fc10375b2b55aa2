package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scadenze/internal/backend"
	"scadenze/internal/config"
	"scadenze/internal/core"
	"scadenze/internal/log"
)

var (
	flagEnvFile string
	flagOwner   string
	flagToday   string

	appConfig *config.Config
	appLogger *log.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from this file instead of ./.env")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", os.Getenv("SCADENZE_OWNER"), "Owner whose commitments are read (default $SCADENZE_OWNER)")
	rootCmd.PersistentFlags().StringVar(&flagToday, "today", "", "Evaluate reports as of this date, YYYY-MM-DD (default: today)")
}

var rootCmd = &cobra.Command{
	Use:   "scadenze",
	Short: "Track recurring obligations, their schedules and their settlements",
	Long: `scadenze keeps recurring commitments (rent, salaries, installment plans) together
with the versioned terms that schedule them and the payments that settle them.
Use 'scadenze serve' to run the HTTP API, or the report commands to inspect one
owner's forecast, arrears and upcoming dues from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagEnvFile != "" {
			LoadEnvFile(flagEnvFile)
		} else {
			LoadEnvFile()
		}
		cfg, err := LoadAndValidateConfig()
		if err != nil {
			return err
		}
		logger, err := SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		appConfig, appLogger = cfg, logger
		return nil
	},
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// withBackend opens the configured backend for the duration of fn.
func withBackend(cmd *cobra.Command, fn func(res *backend.BackendResult) error) error {
	res, err := OpenBackend(cmd.Context(), appLogger, appConfig)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			appLogger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()
	return fn(res)
}

func requireOwner() (string, error) {
	owner := strings.TrimSpace(flagOwner)
	if owner == "" {
		return "", fmt.Errorf("--owner is required (or set SCADENZE_OWNER)")
	}
	return owner, nil
}

func today() (core.Date, error) {
	if flagToday == "" {
		return core.DateOf(time.Now()), nil
	}
	d, err := core.ParseDate(flagToday)
	if err != nil {
		return core.Date{}, fmt.Errorf("--today: %w", err)
	}
	return d, nil
}

// monthFlag reads a YYYY-MM flag, defaulting to the month of def.
func monthFlag(cmd *cobra.Command, name string, def core.Date) (core.Period, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return def.Period(), nil
	}
	p, err := core.ParsePeriod(v)
	if err != nil {
		return core.Period{}, fmt.Errorf("--%s: %w", name, err)
	}
	return p, nil
}
