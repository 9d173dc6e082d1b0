package models

import "time"

// Settings is the immutable configuration of one crmsync process. It is
// built once by the configuration manager and passed down explicitly.
type Settings struct {
	Home    string                  `yaml:"home" mapstructure:"home"`
	CRM     CRMSettings             `yaml:"crm" mapstructure:"crm"`
	Source  SourceSettings          `yaml:"source" mapstructure:"source"`
	Session SessionSettings         `yaml:"session" mapstructure:"session"`
	Events  EventSettings           `yaml:"events" mapstructure:"events"`
	Senders map[string]SenderConfig `yaml:"senders" mapstructure:"-"`
}

// CRMSettings configures the record store client.
type CRMSettings struct {
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	APIToken       string        `yaml:"api_token" mapstructure:"api_token"`
	OwnerID        int64         `yaml:"owner_id" mapstructure:"owner_id"`
	ChannelFieldID int64         `yaml:"channel_field_id" mapstructure:"channel_field_id"`
	CompanyFieldID int64         `yaml:"company_field_id" mapstructure:"company_field_id"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SourceSettings configures retrieval and parsing of marketplace thread pages.
type SourceSettings struct {
	BaseURL   string         `yaml:"base_url" mapstructure:"base_url"`
	LoginPath string         `yaml:"login_path" mapstructure:"login_path"`
	UserAgent string         `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   time.Duration  `yaml:"timeout" mapstructure:"timeout"`
	Markup    MarkupSettings `yaml:"markup" mapstructure:"markup"`
}

// MarkupSettings overrides the structural markers the thread parser looks for.
// Empty fields keep the parser defaults.
type MarkupSettings struct {
	Container          string `yaml:"container,omitempty" mapstructure:"container"`
	TextDirective      string `yaml:"text_directive,omitempty" mapstructure:"text_directive"`
	Block              string `yaml:"block,omitempty" mapstructure:"block"`
	Anchor             string `yaml:"anchor,omitempty" mapstructure:"anchor"`
	TimeCell           string `yaml:"time_cell,omitempty" mapstructure:"time_cell"`
	DateHeader         string `yaml:"date_header,omitempty" mapstructure:"date_header"`
	SentColor          string `yaml:"sent_color,omitempty" mapstructure:"sent_color"`
	UnknownDate        string `yaml:"unknown_date,omitempty" mapstructure:"unknown_date"`
	MinContainerLength int    `yaml:"min_container_length,omitempty" mapstructure:"min_container_length"`
}

// SessionSettings configures where the authenticated session artifact lives.
type SessionSettings struct {
	Path            string `yaml:"path" mapstructure:"path"`
	RedisURL        string `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	BrowserHeadless bool   `yaml:"browser_headless" mapstructure:"browser_headless"`
}

// EventSettings configures the event log and post-sync notifications.
type EventSettings struct {
	Path         string `yaml:"path" mapstructure:"path"`
	AMQPURL      string `yaml:"amqp_url,omitempty" mapstructure:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange,omitempty" mapstructure:"amqp_exchange"`
	SlackWebhook string `yaml:"slack_webhook,omitempty" mapstructure:"slack_webhook"`
}

// Sender looks up the sender mapping for an email address by exact key.
func (s Settings) Sender(email string) (SenderConfig, error) {
	cfg, ok := s.Senders[email]
	if !ok {
		return SenderConfig{}, &ConfigurationError{Key: "senders", Reason: "no mapping for sender " + email}
	}
	return cfg, nil
}
