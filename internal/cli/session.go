package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/crmsync/internal/storage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or remove the saved marketplace session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved session",
	Long: `Show where the marketplace session is stored, when it was captured and
which cookies it holds. Cookie values are not printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if SessionStore == nil {
			return fmt.Errorf("session store not initialized")
		}

		session, err := SessionStore.Load(context.Background())
		if errors.Is(err, storage.ErrNoSession) {
			fmt.Printf("No session saved at %s. Run `crmsync login` first.\n", SessionStore.Location())
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}

		now := time.Now()
		fmt.Printf("Location: %s\n", SessionStore.Location())
		fmt.Printf("Domain:   %s\n", session.Domain)
		fmt.Printf("Captured: %s\n", session.CapturedAt.Format(time.RFC3339))
		fmt.Printf("Cookies:  %d\n\n", len(session.Cookies))
		for _, c := range session.Cookies {
			expiry := "session"
			if !c.Expires.IsZero() {
				expiry = c.Expires.Format(time.RFC3339)
				if c.Expires.Before(now) {
					expiry += " (expired)"
				}
			}
			fmt.Printf("  %-28s %-20s %s\n", c.Name, c.Domain, expiry)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if SessionStore == nil {
			return fmt.Errorf("session store not initialized")
		}
		if err := SessionStore.Clear(context.Background()); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		fmt.Printf("Session cleared (%s)\n", SessionStore.Location())
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}
