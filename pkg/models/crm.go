package models

import (
	"strings"
	"time"
)

// Person is a contact record in the remote CRM.
type Person struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	FirstName string `json:"first_name,omitempty" yaml:"first_name,omitempty"`
}

// FirstNameToken returns the explicit first name when present, otherwise the
// first whitespace-delimited token of Name.
func (p Person) FirstNameToken() string {
	if tok := FirstToken(p.FirstName); tok != "" {
		return tok
	}
	return FirstToken(p.Name)
}

// FirstToken returns the first whitespace-delimited token of s, or "".
func FirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Deal is a sales opportunity attached to exactly one Person.
type Deal struct {
	ID       int64  `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	PersonID int64  `json:"person_id" yaml:"person_id"`
	Deleted  bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Note is free-form content attached to a Deal. Notes double as the ledger
// of which messages have already been synced.
type Note struct {
	ID      int64  `json:"id" yaml:"id"`
	DealID  int64  `json:"deal_id" yaml:"deal_id"`
	Content string `json:"content" yaml:"content"`
}

// NewDeal carries the attributes for creating a deal. Fields holds custom
// attribute values keyed by their resolved write keys.
type NewDeal struct {
	Title    string
	OwnerID  int64
	PersonID int64
	Fields   map[string]any
}

// SenderConfig maps the address that triggered a run onto the deal
// attributes it implies.
type SenderConfig struct {
	ChannelOptionID int64  `json:"channel_option_id" yaml:"channel_option_id" mapstructure:"channel_option_id"`
	CompanyOptionID int64  `json:"company_option_id" yaml:"company_option_id" mapstructure:"company_option_id"`
	DealTitlePrefix string `json:"deal_title_prefix" yaml:"deal_title_prefix" mapstructure:"deal_title_prefix"`
}

// SyncAction records which branch of reconciliation a run took.
type SyncAction string

const (
	ActionCreatedNewDeal            SyncAction = "created_new_deal"
	ActionSyncedNotesToExistingDeal SyncAction = "synced_notes_to_existing_deal"
)

// SyncResult is the outcome of reconciling one thread.
type SyncResult struct {
	PersonID   int64      `json:"person_id"`
	DealID     int64      `json:"deal_id"`
	NotesAdded int        `json:"notes_added"`
	Action     SyncAction `json:"action"`
}

// SyncSummary describes a completed sync run for notifications and logs.
type SyncSummary struct {
	RunID       string     `json:"run_id"`
	ThreadURL   string     `json:"thread_url"`
	Sender      string     `json:"sender"`
	ContactName string     `json:"contact_name"`
	Messages    int        `json:"messages"`
	Result      SyncResult `json:"result"`
	DryRun      bool       `json:"dry_run,omitempty"`
	FinishedAt  time.Time  `json:"finished_at"`
}
