package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

var observationsCmd = &cobra.Command{
	Use:     "observations",
	Aliases: []string{"obs"},
	Short:   "List recorded measurements",
	Args:    cobra.NoArgs,
	RunE:    runObservations,
}

func init() {
	rootCmd.AddCommand(observationsCmd)
}

func runObservations(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *session.Session, _ *store.SQLiteStore) error {
		state := sess.State()

		if len(state.Observations) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No observations yet.")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Record one with: n1 log <value>")
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPHASE\tCONDITION\tVALUE")

		for _, o := range state.Observations {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				o.Date,
				o.Phase,
				state.PhaseLabel(o.Phase),
				strconv.FormatFloat(o.Value, 'f', -1, 64),
			)
		}

		return w.Flush()
	})
}
