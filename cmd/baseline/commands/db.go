package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

// DbCmd represents the db command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the sqlite database",
	Long: `Manage the sqlite database holding the baseline catalog and run history.

Examples:
  baseline db migrate              # Apply pending migrations
  baseline db migrations           # List embedded migrations`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runDbMigrate,
}

var dbMigrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "List embedded migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := db.Migrations()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbMigrationsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	driver := cfg.GetDatabaseDriver()
	if d, err := db.DialectFor(cfg.Database.Dialect, driver, ""); err != nil || d.Name() != "sqlite" {
		return errors.WithHint(
			errors.Newf("migrations only apply to sqlite, database.driver is %s", driver),
			"on other stores the catalog and result tables are managed outside baseline")
	}

	conn, err := db.Open(cfg.GetDatabaseDSN(), logger.Logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	applied, err := db.MigrateCount(conn, logger.Logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s\n", applied, cfg.GetDatabaseDSN())
	return nil
}
