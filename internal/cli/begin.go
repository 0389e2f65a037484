package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

var (
	beginName   string
	beginPhaseA string
	beginPhaseB string
	beginMetric string
	beginStart  string
	beginDays   int
	beginYes    bool
)

var beginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Start a new experiment",
	Long: `Start a new A/B experiment, replacing any current one.

The schedule alternates phase A and phase B in blocks of --days days,
two blocks in total. Observations from a replaced experiment are discarded.

Example:
  n1 begin
  n1 begin --phase-a "Coffee" --phase-b "No coffee" --metric "Sleep hours" --days 5
  n1 begin --start 2024-01-01 --name "Alex" --yes`,
	Args: cobra.NoArgs,
	RunE: runBegin,
}

func init() {
	beginCmd.Flags().StringVar(&beginName, "name", "", "display name shown on the dashboard")
	beginCmd.Flags().StringVar(&beginPhaseA, "phase-a", "A: Late snack", "label for phase A")
	beginCmd.Flags().StringVar(&beginPhaseB, "phase-b", "B: No late snack", "label for phase B")
	beginCmd.Flags().StringVar(&beginMetric, "metric", "Morning BP (systolic)", "what you measure each day")
	beginCmd.Flags().StringVar(&beginStart, "start", "", "start date YYYY-MM-DD (default: today)")
	beginCmd.Flags().IntVarP(&beginDays, "days", "d", 7, fmt.Sprintf("days per phase (%d-%d)", experiment.MinPhaseLength, experiment.MaxPhaseLength))
	beginCmd.Flags().BoolVarP(&beginYes, "yes", "y", false, "replace an active experiment without asking")
	rootCmd.AddCommand(beginCmd)
}

func runBegin(cmd *cobra.Command, args []string) error {
	design := experiment.Design{
		PhaseALabel:     beginPhaseA,
		PhaseBLabel:     beginPhaseB,
		MetricLabel:     beginMetric,
		PhaseLengthDays: beginDays,
	}
	if beginStart != "" {
		start, err := experiment.ParseDate(beginStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		design.StartDate = start
	}

	return withSession(cmd.Context(), func(sess *session.Session, s *store.SQLiteStore) error {
		out := cmd.OutOrStdout()

		if sess.Status() == experiment.StatusActive && !beginYes {
			n := len(sess.State().Observations)
			ok, err := confirm(fmt.Sprintf("Replace the active experiment (%d observations will be discarded)", n))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Cancelled. The current experiment is unchanged.")
				return nil
			}
		}

		if err := sess.Begin(cmd.Context(), design); err != nil {
			if errors.Is(err, experiment.ErrInvalidDesign) {
				return err
			}
			return fmt.Errorf("failed to begin experiment: %w", err)
		}

		if name := strings.TrimSpace(beginName); name != "" {
			if err := s.UpsertUser(cmd.Context(), sess.UserID(), name); err != nil {
				return err
			}
		}

		state := sess.State()
		fmt.Fprintf(out, "Started experiment: %s\n", state.MetricLabel)
		fmt.Fprintf(out, "  A: %s\n", state.PhaseALabel)
		fmt.Fprintf(out, "  B: %s\n", state.PhaseBLabel)
		fmt.Fprintf(out, "  %d days per phase, from %s to %s\n",
			state.PhaseLengthDays, state.StartDate, state.StartDate.AddDays(len(state.Sequence)-1))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Sequence: %s\n", formatSequence(state.Sequence))

		phase := sess.CurrentPhase()
		fmt.Fprintf(out, "Today (%s): phase %s (%s)\n", sess.Today(), phase, state.PhaseLabel(phase))
		return nil
	})
}
