package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/stats"
	"github.com/carecompanion/n1/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Compare phase A and phase B so far",
	Long:  `Show the mean of each phase and the difference B − A. Does not end the experiment.`,
	Args:  cobra.NoArgs,
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *session.Session, _ *store.SQLiteStore) error {
		out := cmd.OutOrStdout()
		state := sess.State()

		if state.Status() == experiment.StatusUnconfigured {
			fmt.Fprintln(out, "No experiment yet. Start one with: n1 begin")
			return nil
		}

		result, err := sess.Result()
		if err != nil {
			fmt.Fprintf(out, "METRIC: %s\n", state.MetricLabel)
			fmt.Fprintf(out, "STATUS: %s\n", state.Status())
			fmt.Fprintln(out)
			fmt.Fprintln(out, state.AnalysisMessage())
			return nil
		}

		printResult(out, state, result)
		return nil
	})
}

func printResult(out io.Writer, state experiment.State, result experiment.Result) {
	fmt.Fprintf(out, "METRIC: %s\n", state.MetricLabel)
	fmt.Fprintf(out, "STATUS: %s\n", state.Status())
	fmt.Fprintln(out)

	// Print table header
	fmt.Fprintln(out, "PHASE  CONDITION             N    MEAN     MIN      MAX      SD")
	fmt.Fprintln(out, strings.Repeat("─", 66))

	printSummaryRow(out, experiment.PhaseA, state.PhaseALabel, result.A)
	printSummaryRow(out, experiment.PhaseB, state.PhaseBLabel, result.B)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s vs %s: A=%s, B=%s, Δ=%+.1f\n",
		state.PhaseALabel, state.PhaseBLabel, formatValue(result.MeanA), formatValue(result.MeanB), result.Delta)
	fmt.Fprintln(out, "If Δ is clinically meaningful and consistent, prefer the better phase.")
}

func printSummaryRow(out io.Writer, phase experiment.Phase, label string, s stats.Summary) {
	// Truncate label if too long
	if len(label) > 20 {
		label = label[:17] + "..."
	}

	fmt.Fprintf(out, "%-5s  %-20s  %-3d  %-7s  %-7s  %-7s  %s\n",
		phase,
		label,
		s.Count,
		formatValue(s.Mean),
		formatValue(s.Min),
		formatValue(s.Max),
		formatValue(s.StdDev),
	)
}
