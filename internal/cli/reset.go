package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/store"
)

func init() {
	rootCmd.AddCommand(newResetCmd())
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored experiment",
		Long: `Delete the current user's stored experiment and all its observations.

Example:
  n1 reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				return runReset(cmd, s, yes)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")

	return cmd
}

func runReset(cmd *cobra.Command, s *store.SQLiteStore, yes bool) error {
	ctx := cmd.Context()

	id, err := resolveUserID(ctx, s)
	if err != nil {
		return err
	}

	if !yes {
		ok, err := confirm("Delete the stored experiment and all observations")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := s.DeleteState(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reset.")
			return nil
		}
		return fmt.Errorf("failed to reset experiment: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Experiment deleted.")
	return nil
}
