package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

var logDate string

var logCmd = &cobra.Command{
	Use:   "log <value>",
	Short: "Record today's measurement",
	Long: `Record one measurement. It is tagged with the phase scheduled for its date.

Examples:
  n1 log 128
  n1 log 121.5 --date 2024-01-02`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logDate, "date", "", "date of the measurement YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: must be a number", args[0])
	}
	if value < experiment.MinObservationValue || value > experiment.MaxObservationValue {
		return fmt.Errorf("value must be between %d and %d", experiment.MinObservationValue, experiment.MaxObservationValue)
	}

	return withSession(cmd.Context(), func(sess *session.Session, _ *store.SQLiteStore) error {
		date := sess.Today()
		if logDate != "" {
			d, err := experiment.ParseDate(logDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			date = d
		}

		obs, err := sess.RecordOn(cmd.Context(), date, value)
		if err != nil {
			if errors.Is(err, experiment.ErrInactiveExperiment) {
				return fmt.Errorf("no active experiment. Start one with: n1 begin")
			}
			if errors.Is(err, session.ErrPersistence) {
				return fmt.Errorf("failed to save observation: %w", err)
			}
			return err
		}

		state := sess.State()
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %s on %s (phase %s: %s)\n",
			strconv.FormatFloat(obs.Value, 'f', -1, 64), obs.Date, obs.Phase, state.PhaseLabel(obs.Phase))
		return nil
	})
}
