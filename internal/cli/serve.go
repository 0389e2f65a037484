package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/server"
	"github.com/carecompanion/n1/internal/store"
)

const serverURLSetting = "server_url"

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the n1 HTTP server.

The server provides:
  - JSON API for recording and analyzing experiments (per user)
  - Dashboard for sharing progress with a caregiver
  - Health check endpoint

Example:
  n1 serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		if cfg.ServerURL != "" {
			if err := s.SetSetting(cmd.Context(), serverURLSetting, cfg.ServerURL); err != nil {
				return err
			}
		}

		srv := server.New(s, port, getTokenFilePath(),
			server.WithClock(clock),
			server.WithLogger(logger),
		)

		printServeInstructions(cmd, port)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
}

func printServeInstructions(cmd *cobra.Command, port int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API: http://localhost:%d/api/experiment (send X-User-ID and Authorization: Bearer <token>)\n", port)
	fmt.Fprintln(out, "Run 'n1 token' to get the dashboard link again.")
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	// Store token file alongside the database
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".n1-token")
}
