package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// Notifier announces completed syncs to an external channel.
type Notifier interface {
	NotifySynced(ctx context.Context, summary models.SyncSummary) error
}

// slackNotifier posts a sync summary to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NotifySynced posts the summary. Runs that added no notes are not announced.
func (s *slackNotifier) NotifySynced(ctx context.Context, summary models.SyncSummary) error {
	if summary.Result.NotesAdded == 0 && summary.Result.Action != models.ActionCreatedNewDeal {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(summary))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildSlackMessage(summary models.SyncSummary) slackMessage {
	header := "Conversation synced"
	if summary.Result.Action == models.ActionCreatedNewDeal {
		header = "New deal from conversation"
	}
	if summary.DryRun {
		header += " (dry run)"
	}

	text := fmt.Sprintf("*%s* via %s\nDeal #%d, person #%d\n%d of %d message(s) added\n<%s|Open conversation>",
		summary.ContactName,
		summary.Sender,
		summary.Result.DealID,
		summary.Result.PersonID,
		summary.Result.NotesAdded,
		summary.Messages,
		summary.ThreadURL,
	)

	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}},
	}}
}
