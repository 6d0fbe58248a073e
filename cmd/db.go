package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rolograph/rolograph/config"
	"github.com/rolograph/rolograph/pkg/db"
)

var migrationsDir string

// DBCmd represents the db command group.
var DBCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
	Long: `Manage the Postgres schema. Migrations are plain SQL files applied
in filename order and recorded in the schema_migrations table.

The schema requires the pgvector and pg_trgm extensions; the first
migration creates them.

Examples:
  rolo db migrate
  rolo db status`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runDBStatus,
}

func init() {
	DBCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "migrations", "path to the migrations directory")

	DBCmd.AddCommand(dbMigrateCmd)
	DBCmd.AddCommand(dbStatusCmd)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.Connect(cmd.Context(), &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	result, err := db.RunMigrations(cmd.Context(), pool, migrationsDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(result.Applied) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	for _, name := range result.Applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.Connect(cmd.Context(), &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	entries, err := db.MigrationStatusReport(cmd.Context(), pool, migrationsDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		state := "pending"
		if e.AppliedAt != nil {
			state = "applied " + e.AppliedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%-40s %s\n", e.Name, state)
	}
	return nil
}
