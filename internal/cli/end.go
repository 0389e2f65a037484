package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

func init() {
	rootCmd.AddCommand(newEndCmd())
}

func newEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the experiment and show the result",
		Long: `End the current experiment and compare the phases.

After ending, no more measurements can be logged. The result stays
available through 'results' until a new experiment begins.

Example:
  n1 end`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(sess *session.Session, _ *store.SQLiteStore) error {
				out := cmd.OutOrStdout()

				if sess.Status() == experiment.StatusUnconfigured {
					return fmt.Errorf("no experiment to end. Start one with: n1 begin")
				}

				result, err := sess.End(cmd.Context())
				state := sess.State()

				fmt.Fprintln(out, "Experiment ended.")
				fmt.Fprintln(out)
				if errors.Is(err, experiment.ErrAnalysisUnavailable) {
					fmt.Fprintf(out, "METRIC: %s\n", state.MetricLabel)
					fmt.Fprintln(out)
					fmt.Fprintln(out, state.AnalysisMessage())
				} else {
					printResult(out, state, result)
				}

				if errors.Is(err, session.ErrPersistence) {
					return fmt.Errorf("failed to save ended experiment: %w", err)
				}
				return nil
			})
		},
	}

	return cmd
}
