// Package core contains the business logic of crmsync: parsing marketplace
// thread pages, rendering notes, reconciling threads with the CRM, and
// loading configuration.
package core

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// ConfigFileName is the name (without extension) of the YAML config file.
const ConfigFileName = ".crmsync"

// ConfigurationManager loads and validates crmsync settings from the
// environment, .env files and a YAML config file.
type ConfigurationManager interface {
	Load() (*models.Settings, error)
	ValidateSettings(s *models.Settings) error
}

// viperConfigManager implements ConfigurationManager using Viper.
type viperConfigManager struct {
	home       string
	configFile string
}

// NewConfigurationManager creates a ConfigurationManager. configFile, when
// non-empty, replaces the search for .crmsync.yaml in home and the working
// directory.
func NewConfigurationManager(home, configFile string) ConfigurationManager {
	return &viperConfigManager{home: home, configFile: configFile}
}

// senderEntry is one item of the senders list in the config file. Senders
// are a list because email addresses contain dots, which Viper treats as key
// separators.
type senderEntry struct {
	Email           string `mapstructure:"email"`
	ChannelOptionID int64  `mapstructure:"channel_option_id"`
	CompanyOptionID int64  `mapstructure:"company_option_id"`
	DealTitlePrefix string `mapstructure:"deal_title_prefix"`
}

func (cm *viperConfigManager) setDefaults(v *viper.Viper) {
	v.SetDefault("crm.base_url", "https://api.pipedrive.com/v1")
	v.SetDefault("crm.api_token", "")
	v.SetDefault("crm.owner_id", 0)
	v.SetDefault("crm.channel_field_id", 0)
	v.SetDefault("crm.company_field_id", 0)
	v.SetDefault("crm.timeout", 30*time.Second)

	v.SetDefault("source.base_url", "https://www.ss.lv")
	v.SetDefault("source.login_path", "/login")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("source.timeout", 30*time.Second)
	markup := DefaultThreadMarkup()
	v.SetDefault("source.markup.container", markup.Container)
	v.SetDefault("source.markup.text_directive", markup.TextDirective)
	v.SetDefault("source.markup.block", markup.Block)
	v.SetDefault("source.markup.anchor", markup.Anchor)
	v.SetDefault("source.markup.time_cell", markup.TimeCell)
	v.SetDefault("source.markup.date_header", markup.DateHeader)
	v.SetDefault("source.markup.sent_color", markup.SentColor)
	v.SetDefault("source.markup.unknown_date", markup.UnknownDate)
	v.SetDefault("source.markup.min_container_length", markup.MinContainerLength)

	v.SetDefault("session.path", filepath.Join(cm.home, "session.yaml"))
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.browser_headless", false)

	v.SetDefault("events.path", filepath.Join(cm.home, "events.jsonl"))
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.amqp_exchange", "crmsync")
	v.SetDefault("events.slack_webhook", "")
}

// Load reads .env files, the YAML config file and CRMSYNC_* environment
// variables. Precedence: environment > config file > defaults. A missing
// config file is not an error.
func (cm *viperConfigManager) Load() (*models.Settings, error) {
	// Missing .env files are fine; the environment may already be set.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(cm.home, ".env"))

	v := viper.New()
	if cm.configFile != "" {
		if _, err := os.Stat(cm.configFile); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(cm.configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(cm.home)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CRMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("crm.api_token", "CRMSYNC_CRM_API_TOKEN", "PIPEDRIVE_API_TOKEN"); err != nil {
		return nil, fmt.Errorf("binding api token env: %w", err)
	}
	cm.setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Unmarshal (not UnmarshalKey) so environment overrides reach nested keys.
	var raw struct {
		CRM     models.CRMSettings     `mapstructure:"crm"`
		Source  models.SourceSettings  `mapstructure:"source"`
		Session models.SessionSettings `mapstructure:"session"`
		Events  models.EventSettings   `mapstructure:"events"`
		Senders []senderEntry          `mapstructure:"senders"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	s := &models.Settings{
		Home:    cm.home,
		CRM:     raw.CRM,
		Source:  raw.Source,
		Session: raw.Session,
		Events:  raw.Events,
	}
	s.Senders = make(map[string]models.SenderConfig, len(raw.Senders))
	for _, e := range raw.Senders {
		if e.Email == "" {
			continue
		}
		s.Senders[e.Email] = models.SenderConfig{
			ChannelOptionID: e.ChannelOptionID,
			CompanyOptionID: e.CompanyOptionID,
			DealTitlePrefix: e.DealTitlePrefix,
		}
	}

	return s, nil
}

// ValidateSettings checks the settings a sync run needs and returns a
// *models.ConfigurationError naming the first problem.
func (cm *viperConfigManager) ValidateSettings(s *models.Settings) error {
	if s == nil {
		return &models.ConfigurationError{Reason: "settings are nil"}
	}
	if strings.TrimSpace(s.CRM.APIToken) == "" {
		return &models.ConfigurationError{Key: "crm.api_token", Reason: "API token is required (set CRMSYNC_CRM_API_TOKEN or PIPEDRIVE_API_TOKEN)"}
	}
	if err := validateBaseURL("crm.base_url", s.CRM.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("source.base_url", s.Source.BaseURL); err != nil {
		return err
	}
	if s.CRM.ChannelFieldID <= 0 {
		return &models.ConfigurationError{Key: "crm.channel_field_id", Reason: "must be a positive field id"}
	}
	if s.CRM.CompanyFieldID <= 0 {
		return &models.ConfigurationError{Key: "crm.company_field_id", Reason: "must be a positive field id"}
	}
	if len(s.Senders) == 0 {
		return &models.ConfigurationError{Key: "senders", Reason: "at least one sender mapping is required"}
	}
	return nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("%q is not an absolute URL", raw)}
	}
	return nil
}
