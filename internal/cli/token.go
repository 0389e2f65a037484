package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carecompanion/n1/internal/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with your access token.

Use this when you've scrolled past the startup message or need to
share the dashboard link with a caregiver.

Example:
  n1 token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(getTokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: n1 serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: n1 serve")
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
		_ = withStore(func(s *store.SQLiteStore) error {
			if url, err := s.GetSetting(cmd.Context(), serverURLSetting); err == nil && url != "" {
				serverURL = url
			}
			return nil
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dashboard: %s/dashboard?token=%s\n", strings.TrimRight(serverURL, "/"), token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: Bookmark this URL or run 'n1 token' anytime.")
	return nil
}
