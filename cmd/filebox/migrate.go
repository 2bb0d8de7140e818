package main

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/store"

	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations of the blob and file tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inspect || dryRun {
				// Open without store.Open so nothing gets applied.
				db, err := openRawDB(cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
				return printMigrationPlan(db, opts)
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DBPath, err)
			}
			defer st.Close()

			if opts.structured() {
				return printMigrationPlan(st.DB(), opts)
			}
			fmt.Printf("Schema of %s is up to date.\n", cfg.DBPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func printMigrationPlan(db *sql.DB, opts *cliOptions) error {
	plan, err := store.MigrationPlan(db)
	if err != nil {
		return fmt.Errorf("inspect migrations: %w", err)
	}
	if opts.structured() {
		return writeJSON(plan)
	}

	fmt.Printf("Schema version: %d of %d\n", plan.CurrentVersion, plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		fmt.Println("Nothing to apply.")
		return nil
	}
	for _, m := range plan.Pending {
		fmt.Printf("  pending %d: %s\n", m.Version, m.Description)
	}
	return nil
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
