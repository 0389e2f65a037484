package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/export"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the experiment's observations",
	Long: `Export the experiment and its observations in CSV, JSON or YAML format.

Examples:
  n1 export --format csv > snack-bp.csv
  n1 export --format yaml -o snack-bp.yaml`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, json or yaml)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	return withSession(cmd.Context(), func(sess *session.Session, _ *store.SQLiteStore) error {
		state := sess.State()
		if state.Status() == experiment.StatusUnconfigured {
			return fmt.Errorf("no experiment to export. Start one with: n1 begin")
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := export.Write(w, format, state); err != nil {
			return err
		}

		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d observations to %s\n", len(state.Observations), exportOutput)
		}
		return nil
	})
}
