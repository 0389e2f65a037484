package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carecompanion/n1/internal/config"
	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/logging"
	"github.com/carecompanion/n1/internal/session"
)

var (
	dbPath    string
	userID    string
	todayFlag string

	cfg, configErr = loadConfig()

	logger = zap.NewNop()
	clock  session.Clock
)

var rootCmd = &cobra.Command{
	Use:   "n1",
	Short: "n1 - run a personal A/B self-experiment",
	Long: `🧪 n1 runs a single-subject (N-of-1) experiment.

Pick two conditions (A and B), alternate them in blocks of days, log one
number a day, and compare the averages at the end.

Example:
  n1 begin --phase-a "Late snack" --phase-b "No late snack" --days 7
  n1 log 128
  n1 end`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")
	rootCmd.PersistentFlags().StringVar(&userID, "user", cfg.UserID, "user id (default: generated once and remembered)")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "treat this date (YYYY-MM-DD) as today")
}

// loadConfig keeps usable flag defaults when the environment is invalid;
// the error is reported once a command runs.
func loadConfig() (config.Config, error) {
	c, err := config.Load()
	if err != nil {
		c.DBPath = "./n1.db"
		c.Port = 8080
	}
	return c, err
}

func setup(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}

	l, err := logging.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = l.With(zap.String("command", cmd.Name()))

	if todayFlag != "" {
		d, err := experiment.ParseDate(todayFlag)
		if err != nil {
			return fmt.Errorf("invalid --today: %w", err)
		}
		clock = session.FixedClock(d)
		return nil
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clock = session.SystemClock{Location: loc}
	return nil
}
