package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the marketplace and save the session",
	Long: `Open a browser on the marketplace login page and wait until you have
signed in. The session cookies are then saved so that sync can fetch thread
pages on your behalf. Run it again whenever sync reports an expired session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Browser == nil {
			return fmt.Errorf("browser login not initialized")
		}
		if SessionStore == nil {
			return fmt.Errorf("session store not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintf(os.Stderr, "Opening %s; sign in within the browser window.\n", Browser.LoginURL())
		session, err := Browser.CaptureSession(ctx)
		if err != nil {
			return fmt.Errorf("capturing session: %w", err)
		}
		if err := SessionStore.Save(ctx, session); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		fmt.Printf("Saved %d cookie(s) for %s to %s\n", len(session.Cookies), session.Domain, SessionStore.Location())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
