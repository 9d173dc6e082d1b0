package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/crmsync/internal/core"
	"github.com/valter-silva-au/crmsync/internal/observability"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

const threadHTML = `<html><body>
<div id="msg_thread">
  <div class="msg_date">12.03.2024</div>
  <div class="msg_row" style="background:#e4f1d8"><a name="5"></a><span class="msg_time">10:15</span></div>
  <div class="msg_row"><a name="3"></a><span class="msg_time">09:40</span></div>
  <script>msg_text("Vai auto vēl pārdošanā?", 5); msg_text("Labdien", 3);</script>
</div>
</body></html>`

// --- Fakes ---

type fakeSyncRunner struct {
	report *core.SyncReport
	err    error
	got    []core.SyncRequest
}

func (f *fakeSyncRunner) Run(_ context.Context, req core.SyncRequest) (*core.SyncReport, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	err     error
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decodeResult reads the structured content of a successful call into out.
func decodeResult(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var data []byte
	if result.StructuredContent != nil {
		data, _ = json.Marshal(result.StructuredContent)
	} else {
		data = []byte(extractText(result))
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshalling result: %v (data was: %s)", err, data)
	}
}

// --- Tests ---

func TestParseThread(t *testing.T) {
	srv := NewServer(nil, nil, nil, "test")

	result := callTool(t, srv, "parse_thread", map[string]any{"html": threadHTML})

	var out parseThreadOutput
	decodeResult(t, result, &out)
	if out.Count != 2 {
		t.Fatalf("expected 2 messages, got %d", out.Count)
	}
	if out.Messages[0].ID != "3" || out.Messages[1].ID != "5" {
		t.Errorf("messages not in id order: %+v", out.Messages)
	}
	if out.Messages[1].Direction != string(models.DirectionSent) {
		t.Errorf("message 5 direction = %q, want sent", out.Messages[1].Direction)
	}
	if out.Messages[0].Date != "12.03.2024" {
		t.Errorf("message 3 date = %q", out.Messages[0].Date)
	}
}

func TestParseThreadMissingContainer(t *testing.T) {
	srv := NewServer(nil, nil, nil, "test")

	result := callTool(t, srv, "parse_thread", map[string]any{"html": "<html><body><p>nothing here</p></body></html>"})

	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(extractText(result), "not found") {
		t.Errorf("unexpected error text: %s", extractText(result))
	}
}

func TestSyncThread(t *testing.T) {
	runner := &fakeSyncRunner{report: &core.SyncReport{
		RunID:  "run-1",
		Thread: models.NewThread([]models.Message{{ID: "3", Text: "Labdien"}}),
		Result: models.SyncResult{PersonID: 7, DealID: 11, NotesAdded: 1, Action: models.ActionSyncedNotesToExistingDeal},
	}}
	srv := NewServer(nil, runner, nil, "test")

	result := callTool(t, srv, "sync_thread", map[string]any{
		"thread_url":   "https://www.ss.lv/msg/42",
		"sender_email": "sales@example.lv",
		"contact_name": "Jānis Bērziņš",
		"dry_run":      true,
	})

	var out syncThreadOutput
	decodeResult(t, result, &out)
	if out.DealID != 11 || out.NotesAdded != 1 || out.Action != string(models.ActionSyncedNotesToExistingDeal) {
		t.Errorf("unexpected output: %+v", out)
	}
	if len(runner.got) != 1 {
		t.Fatalf("expected 1 sync call, got %d", len(runner.got))
	}
	if !runner.got[0].DryRun || runner.got[0].ContactName != "Jānis Bērziņš" {
		t.Errorf("request not forwarded: %+v", runner.got[0])
	}
}

func TestSyncThreadRequiresArguments(t *testing.T) {
	runner := &fakeSyncRunner{}
	srv := NewServer(nil, runner, nil, "test")

	result := callTool(t, srv, "sync_thread", map[string]any{
		"thread_url":   "https://www.ss.lv/msg/42",
		"sender_email": "",
		"contact_name": "Jānis",
	})
	if !result.IsError {
		t.Fatal("expected error result for empty sender_email")
	}
	if len(runner.got) != 0 {
		t.Errorf("runner should not be called, got %d calls", len(runner.got))
	}
}

func TestSyncThreadSessionExpired(t *testing.T) {
	runner := &fakeSyncRunner{err: &models.SessionExpiredError{URL: "https://www.ss.lv/login"}}
	srv := NewServer(nil, runner, nil, "test")

	result := callTool(t, srv, "sync_thread", map[string]any{
		"thread_url":   "https://www.ss.lv/msg/42",
		"sender_email": "sales@example.lv",
		"contact_name": "Jānis",
	})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(extractText(result), "crmsync login") {
		t.Errorf("expected login hint, got: %s", extractText(result))
	}
}

func TestSyncThreadDisabled(t *testing.T) {
	srv := NewServer(nil, nil, nil, "test")

	result := callTool(t, srv, "sync_thread", map[string]any{
		"thread_url":   "https://www.ss.lv/msg/42",
		"sender_email": "sales@example.lv",
		"contact_name": "Jānis",
	})
	if !result.IsError {
		t.Fatal("expected error when no runner is configured")
	}
}

func TestGetSyncMetrics(t *testing.T) {
	now := time.Now().UTC()
	mc := &fakeMetricsCalculator{
		metrics: &observability.Metrics{
			Runs:           6,
			Completed:      5,
			Failed:         1,
			FailuresByKind: map[string]int{"session_expired": 1},
			ActionCounts:   map[string]int{string(models.ActionCreatedNewDeal): 2},
			DealsCreated:   2,
			NotesAdded:     9,
			EventCount:     42,
			OldestEvent:    &now,
			NewestEvent:    &now,
		},
	}
	srv := NewServer(nil, nil, mc, "test")

	result := callTool(t, srv, "get_sync_metrics", map[string]any{})

	var m metricsOutput
	decodeResult(t, result, &m)
	if m.Runs != 6 || m.NotesAdded != 9 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if m.FailuresByKind["session_expired"] != 1 {
		t.Errorf("expected 1 session_expired failure, got %v", m.FailuresByKind)
	}
	if m.EventCount != 42 {
		t.Errorf("expected 42 events, got %d", m.EventCount)
	}
}

func TestGetSyncMetricsErrors(t *testing.T) {
	tests := []struct {
		name  string
		mc    observability.MetricsCalculator
		since string
	}{
		{name: "disabled", mc: nil, since: "7d"},
		{name: "bad since", mc: &fakeMetricsCalculator{metrics: &observability.Metrics{}}, since: "7w"},
		{name: "calculator error", mc: &fakeMetricsCalculator{err: errors.New("disk gone")}, since: "24h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(nil, nil, tt.mc, "test")
			result := callTool(t, srv, "get_sync_metrics", map[string]any{"since": tt.since})
			if !result.IsError {
				t.Error("expected error result")
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"7d", false},
		{"30d", false},
		{"24h", false},
		{"1h", false},
		{"", true},
		{"d", true},
		{"7w", true},
		{"abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseSince(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSince(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
