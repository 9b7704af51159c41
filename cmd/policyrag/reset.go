package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every chunk in the collection and forget its ingestions",
	Long: `Clears the configured vector store collection and the ledger records that
belong to it, so the next ingest writes every file again. Ledger records of
other stores or collections are kept.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm deletion")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !resetYes {
		return errors.New("reset deletes every stored chunk; pass --yes to confirm")
	}
	if err := rt.Reset(cmd.Context()); err != nil {
		return err
	}
	cmd.Printf("reset %s: done\n", rt.ledgerScope())
	return nil
}

// Reset empties the collection, then the ledger scope. A ledger left
// behind a failed store clear would skip files whose chunks still exist.
func (a *app) Reset(ctx context.Context) error {
	col, err := a.Collection(ctx)
	if err != nil {
		return err
	}
	led, err := a.Ledger()
	if err != nil {
		return err
	}
	if err := col.Clear(ctx); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if err := led.Clear(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	a.log.Info("Reset collection.", "scope", a.ledgerScope())
	return nil
}
