package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/crmsync/internal/core"
)

var (
	syncDryRun   bool
	syncTUI      bool
	syncHTMLFile string
)

var syncCmd = &cobra.Command{
	Use:   "sync <thread-url> <sender-email> <contact-name>",
	Short: "Sync one marketplace thread into the CRM",
	Long: `Fetch a marketplace message thread and record it in the CRM.

The contact person is matched by first name; the deal that already holds the
thread's opening message receives the messages it is missing. When no deal
holds the conversation a new deal is opened for the sender's account and
every message is added as a note.

Use --html-file to parse a saved page instead of fetching the URL, and
--dry-run to read from the CRM without writing.`,
	Example: `  crmsync sync https://www.ss.lv/msg/lv/123456.html sales@example.lv "Jānis Bērziņš"
  crmsync sync --dry-run --html-file thread.html https://www.ss.lv/msg/lv/123456.html sales@example.lv Jānis`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Syncer == nil {
			return fmt.Errorf("sync service not initialized")
		}

		req := core.SyncRequest{
			ThreadURL:   args[0],
			SenderEmail: args[1],
			ContactName: args[2],
			DryRun:      syncDryRun,
		}
		if syncHTMLFile != "" {
			raw, err := readHTMLInput(syncHTMLFile)
			if err != nil {
				return err
			}
			req.HTML = raw
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var (
			report *core.SyncReport
			err    error
		)
		if syncTUI {
			report, err = runSyncTUI(ctx, Syncer, req)
		} else {
			req.Observer = newLineObserver(os.Stderr)
			report, err = Syncer.Run(ctx, req)
		}
		if err != nil {
			return err
		}

		printSyncReport(report, syncDryRun)
		return nil
	},
}

func printSyncReport(report *core.SyncReport, dryRun bool) {
	r := report.Result
	if dryRun {
		fmt.Println("Dry run: no CRM records were written.")
	}
	fmt.Printf("Action:      %s\n", r.Action)
	fmt.Printf("Person:      #%d\n", r.PersonID)
	fmt.Printf("Deal:        #%d\n", r.DealID)
	fmt.Printf("Messages:    %d\n", report.Thread.Len())
	fmt.Printf("Notes added: %d\n", r.NotesAdded)
	if len(report.Warnings) > 0 {
		fmt.Printf("Skipped:     %d message block(s)\n", len(report.Warnings))
	}
	fmt.Printf("Run:         %s\n", report.RunID)
	if len(report.Planned) > 0 {
		fmt.Println("\nPlanned writes:")
		for _, p := range report.Planned {
			fmt.Printf("  - %s\n", p)
		}
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Read from the CRM but do not create persons, deals or notes")
	syncCmd.Flags().BoolVar(&syncTUI, "tui", false, "Show progress in an interactive terminal view")
	syncCmd.Flags().StringVar(&syncHTMLFile, "html-file", "", "Parse a saved thread page instead of fetching the URL (- for stdin)")
	rootCmd.AddCommand(syncCmd)
}
