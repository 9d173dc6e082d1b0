package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "crmsync",
	Short: "Sync marketplace message threads into the CRM",
	Long: `crmsync copies the message threads of a classifieds marketplace account
into a sales CRM.

For each thread it finds or creates the contact person, finds the deal that
already holds the conversation (or opens a new one), and appends every
message that is not yet recorded as a note. Running it again on the same
thread adds nothing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd || Initialize == nil {
			return nil
		}
		return Initialize(InitOptions{ConfigFile: configFile, Verbose: verbose})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crmsync %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $CRMSYNC_HOME/.crmsync.yaml or ./.crmsync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log HTTP requests and other diagnostics to stderr")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
