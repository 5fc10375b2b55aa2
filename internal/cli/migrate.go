package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"scadenze/internal/storage"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to revert")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
	Long:  `Apply or revert schema migrations on $SQLITE_DB_PATH. The server applies pending migrations on start.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSQLite(); err != nil {
			return err
		}
		if err := storage.RunMigrations(appConfig.SQLiteDBPath); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Schema of %s is up to date.\n", appConfig.SQLiteDBPath)
		return err
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSQLite(); err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1, got %d", steps)
		}
		if err := storage.RollbackMigrations(appConfig.SQLiteDBPath, steps); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Reverted %d migration(s) on %s.\n", steps, appConfig.SQLiteDBPath)
		return err
	},
}

func requireSQLite() error {
	if appConfig.DataBackend != "sqlite" {
		return fmt.Errorf("migrations apply to the sqlite backend, DATA_BACKEND is %q", appConfig.DataBackend)
	}
	return nil
}
