package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/crmsync/internal/core"
)

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse a saved thread page and print its messages",
	Long: `Parse the HTML of a marketplace thread page without contacting the CRM.

Messages are printed in chronological order. Message blocks that could not be
read are reported on stderr; use - to read the page from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readHTMLInput(args[0])
		if err != nil {
			return err
		}

		parser := Parser
		if parser == nil {
			parser = core.NewThreadParser(core.DefaultThreadMarkup())
		}
		thread, warnings, err := parser.Parse(raw)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, warningStyle.Render("warning:")+" "+w.String())
		}

		if parseJSON {
			data, err := json.MarshalIndent(thread.Messages, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting messages as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%d message(s)\n\n", thread.Len())
		for _, m := range thread.Messages {
			fmt.Printf("  %-8s %-9s %-14s %s\n", m.ID, m.Direction, m.Time+" "+m.Date, oneLine(m.Text))
		}
		return nil
	},
}

// readHTMLInput reads a page from path, or from stdin when path is "-".
func readHTMLInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading thread page %s: %w", path, err)
	}
	return string(data), nil
}

// oneLine collapses whitespace so a message fits on a table row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Output messages as JSON")
	rootCmd.AddCommand(parseCmd)
}
