package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the experiment and today's phase",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *session.Session, s *store.SQLiteStore) error {
		out := cmd.OutOrStdout()
		state := sess.State()

		fmt.Fprintf(out, "USER: %s\n", sess.UserID())
		if u, err := s.GetUser(cmd.Context(), sess.UserID()); err == nil && u.Name != "" {
			fmt.Fprintf(out, "NAME: %s\n", u.Name)
		}
		fmt.Fprintf(out, "STATUS: %s\n", state.Status())

		if state.Status() == experiment.StatusUnconfigured {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "No experiment yet. Start one with: n1 begin")
			return nil
		}

		fmt.Fprintf(out, "METRIC: %s\n", state.MetricLabel)
		fmt.Fprintf(out, "A: %s\n", state.PhaseALabel)
		fmt.Fprintf(out, "B: %s\n", state.PhaseBLabel)
		fmt.Fprintf(out, "STARTED: %s (%d days per phase)\n", state.StartDate, state.PhaseLengthDays)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Sequence: %s\n", formatSequence(state.Sequence))

		today := sess.Today()
		phase := sess.CurrentPhase()
		offset := today.DaysSince(state.StartDate)
		switch {
		case offset < 0:
			fmt.Fprintf(out, "Today (%s): starts in %d days, phase %s (%s)\n", today, -offset, phase, state.PhaseLabel(phase))
		case offset >= len(state.Sequence):
			fmt.Fprintf(out, "Today (%s): schedule finished, phase %s (%s)\n", today, phase, state.PhaseLabel(phase))
		default:
			fmt.Fprintf(out, "Today (%s): day %d of %d, phase %s (%s)\n", today, offset+1, len(state.Sequence), phase, state.PhaseLabel(phase))
		}

		var countA, countB int
		for _, o := range state.Observations {
			if o.Phase == experiment.PhaseA {
				countA++
			} else {
				countB++
			}
		}
		fmt.Fprintf(out, "Observations: %d (A: %d, B: %d)\n", len(state.Observations), countA, countB)
		return nil
	})
}
