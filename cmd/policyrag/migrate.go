package main

import (
	"github.com/spf13/cobra"

	"policyrag/internal/vectorstore/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the pgvector schema",
	Long:      `Runs the embedded pgvector migrations against the DSN named by vector_store.postgres.dsn_env.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of migrations to apply (0 = all)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dsn, err := rt.postgresDSN()
	if err != nil {
		return err
	}
	if err := postgres.Migrate(dsn, args[0], migrateSteps); err != nil {
		return err
	}
	cmd.Printf("migrate %s: done\n", args[0])
	return nil
}
