// Package mcp provides an MCP (Model Context Protocol) server that exposes
// crmsync functionality as MCP tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/crmsync/internal/core"
	"github.com/valter-silva-au/crmsync/internal/observability"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// Server wraps crmsync services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	parser      *core.ThreadParser
	runner      core.SyncRunner
	metricsCalc observability.MetricsCalculator
}

// NewServer creates a new MCP server. runner and metricsCalc may be nil, in
// which case the tools that need them report an error.
func NewServer(parser *core.ThreadParser, runner core.SyncRunner, metricsCalc observability.MetricsCalculator, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if parser == nil {
		parser = core.NewThreadParser(core.DefaultThreadMarkup())
	}

	s := &Server{
		parser:      parser,
		runner:      runner,
		metricsCalc: metricsCalc,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "crmsync", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type parseThreadInput struct {
	HTML string `json:"html" jsonschema:"required,the raw HTML of a marketplace message thread page"`
}

type messageOutput struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Time      string `json:"time"`
	Date      string `json:"date"`
	Direction string `json:"direction"`
}

type parseThreadOutput struct {
	Messages []messageOutput `json:"messages"`
	Count    int             `json:"count"`
	Warnings []string        `json:"warnings,omitempty"`
}

type syncThreadInput struct {
	ThreadURL   string `json:"thread_url" jsonschema:"required,URL of the marketplace thread page"`
	SenderEmail string `json:"sender_email" jsonschema:"required,the configured sender account the thread belongs to"`
	ContactName string `json:"contact_name" jsonschema:"required,display name of the counterpart (e.g. Jānis Bērziņš)"`
	HTML        string `json:"html,omitempty" jsonschema:"page HTML to use instead of fetching thread_url"`
	DryRun      bool   `json:"dry_run,omitempty" jsonschema:"read from the CRM but do not write"`
}

type syncThreadOutput struct {
	RunID      string   `json:"run_id"`
	Action     string   `json:"action"`
	PersonID   int64    `json:"person_id"`
	DealID     int64    `json:"deal_id"`
	NotesAdded int      `json:"notes_added"`
	Messages   int      `json:"messages"`
	Warnings   []string `json:"warnings,omitempty"`
	DryRun     bool     `json:"dry_run"`
	Planned    []string `json:"planned,omitempty"`
}

type getSyncMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Runs           int            `json:"runs"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	DryRuns        int            `json:"dry_runs"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	ActionCounts   map[string]int `json:"action_counts"`
	PersonsCreated int            `json:"persons_created"`
	DealsCreated   int            `json:"deals_created"`
	NotesAdded     int            `json:"notes_added"`
	ParseWarnings  int            `json:"parse_warnings"`
	EventCount     int            `json:"event_count"`
	OldestEvent    string         `json:"oldest_event,omitempty"`
	NewestEvent    string         `json:"newest_event,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "parse_thread",
		Description: "Parse the HTML of a marketplace thread page into its messages in chronological order, with the blocks that were skipped.",
	}, s.handleParseThread)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "sync_thread",
		Description: "Sync a marketplace thread into the CRM: match or create the person, find or create the deal, and append missing message notes.",
	}, s.handleSyncThread)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_sync_metrics",
		Description: "Get aggregated sync metrics from the event log: runs, failures by kind, deals created and notes added.",
	}, s.handleGetSyncMetrics)
}

// --- Tool handlers ---

func (s *Server) handleParseThread(_ context.Context, _ *gomcp.CallToolRequest, input parseThreadInput) (*gomcp.CallToolResult, parseThreadOutput, error) {
	if input.HTML == "" {
		return errorResult("html is required"), parseThreadOutput{}, nil
	}

	thread, warnings, err := s.parser.Parse(input.HTML)
	if err != nil {
		return errorResult(err.Error()), parseThreadOutput{}, nil
	}

	out := parseThreadOutput{
		Messages: make([]messageOutput, len(thread.Messages)),
		Count:    thread.Len(),
		Warnings: warningStrings(warnings),
	}
	for i, m := range thread.Messages {
		out.Messages[i] = messageToOutput(m)
	}
	return nil, out, nil
}

func (s *Server) handleSyncThread(ctx context.Context, _ *gomcp.CallToolRequest, input syncThreadInput) (*gomcp.CallToolResult, syncThreadOutput, error) {
	if s.runner == nil {
		return errorResult("sync is not available (configuration may be incomplete)"), syncThreadOutput{}, nil
	}
	switch {
	case input.ThreadURL == "":
		return errorResult("thread_url is required"), syncThreadOutput{}, nil
	case input.SenderEmail == "":
		return errorResult("sender_email is required"), syncThreadOutput{}, nil
	case input.ContactName == "":
		return errorResult("contact_name is required"), syncThreadOutput{}, nil
	}

	report, err := s.runner.Run(ctx, core.SyncRequest{
		ThreadURL:   input.ThreadURL,
		SenderEmail: input.SenderEmail,
		ContactName: input.ContactName,
		HTML:        input.HTML,
		DryRun:      input.DryRun,
	})
	if err != nil {
		return errorResult(describeSyncError(err)), syncThreadOutput{}, nil
	}

	out := syncThreadOutput{
		RunID:      report.RunID,
		Action:     string(report.Result.Action),
		PersonID:   report.Result.PersonID,
		DealID:     report.Result.DealID,
		NotesAdded: report.Result.NotesAdded,
		Messages:   report.Thread.Len(),
		Warnings:   warningStrings(report.Warnings),
		DryRun:     input.DryRun,
		Planned:    report.Planned,
	}
	return nil, out, nil
}

func (s *Server) handleGetSyncMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getSyncMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Runs:           metrics.Runs,
		Completed:      metrics.Completed,
		Failed:         metrics.Failed,
		DryRuns:        metrics.DryRuns,
		FailuresByKind: metrics.FailuresByKind,
		ActionCounts:   metrics.ActionCounts,
		PersonsCreated: metrics.PersonsCreated,
		DealsCreated:   metrics.DealsCreated,
		NotesAdded:     metrics.NotesAdded,
		ParseWarnings:  metrics.ParseWarnings,
		EventCount:     metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

// --- Helpers ---

func messageToOutput(m models.Message) messageOutput {
	return messageOutput{
		ID:        m.ID,
		Text:      m.Text,
		Time:      m.Time,
		Date:      m.Date,
		Direction: string(m.Direction),
	}
}

func warningStrings(warnings []core.ParseWarning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}

// describeSyncError adds a hint for errors the caller can act on.
func describeSyncError(err error) string {
	var sessionErr *models.SessionExpiredError
	if errors.As(err, &sessionErr) {
		return err.Error() + " (run `crmsync login` to refresh the session)"
	}
	return err.Error()
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		FailuresByKind: make(map[string]int),
		ActionCounts:   make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
