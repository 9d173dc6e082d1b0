package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// completeSyncArgs completes the sender email, the second sync argument,
// from the configured sender mappings.
func completeSyncArgs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 1 || Settings == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var emails []string
	for email, sc := range Settings.Senders {
		if toComplete == "" || strings.HasPrefix(email, toComplete) {
			desc := sc.DealTitlePrefix
			if desc == "" {
				emails = append(emails, email)
				continue
			}
			emails = append(emails, email+"\t"+desc)
		}
	}
	sort.Strings(emails)
	return emails, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	syncCmd.ValidArgsFunction = completeSyncArgs
}
