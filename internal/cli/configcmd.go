package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/crmsync/pkg/models"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file, .env files
and CRMSYNC_* environment variables. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Settings == nil {
			return fmt.Errorf("configuration not loaded")
		}

		data, err := yaml.Marshal(redactedSettings(*Settings))
		if err != nil {
			return fmt.Errorf("formatting configuration: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

type senderView struct {
	Email           string `yaml:"email"`
	ChannelOptionID int64  `yaml:"channel_option_id"`
	CompanyOptionID int64  `yaml:"company_option_id"`
	DealTitlePrefix string `yaml:"deal_title_prefix,omitempty"`
}

type settingsView struct {
	Home    string                 `yaml:"home"`
	CRM     models.CRMSettings     `yaml:"crm"`
	Source  models.SourceSettings  `yaml:"source"`
	Session models.SessionSettings `yaml:"session"`
	Events  models.EventSettings   `yaml:"events"`
	Senders []senderView           `yaml:"senders"`
}

// redactedSettings returns s in config-file shape with secrets masked.
func redactedSettings(s models.Settings) settingsView {
	s.CRM.APIToken = maskSecret(s.CRM.APIToken)
	s.Session.RedisURL = maskSecret(s.Session.RedisURL)
	s.Events.AMQPURL = maskSecret(s.Events.AMQPURL)
	s.Events.SlackWebhook = maskSecret(s.Events.SlackWebhook)

	view := settingsView{
		Home:    s.Home,
		CRM:     s.CRM,
		Source:  s.Source,
		Session: s.Session,
		Events:  s.Events,
	}
	emails := make([]string, 0, len(s.Senders))
	for email := range s.Senders {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		sc := s.Senders[email]
		view.Senders = append(view.Senders, senderView{
			Email:           email,
			ChannelOptionID: sc.ChannelOptionID,
			CompanyOptionID: sc.CompanyOptionID,
			DealTitlePrefix: sc.DealTitlePrefix,
		})
	}
	return view
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
