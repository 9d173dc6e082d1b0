package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// SyncRunner runs one sync request. *SyncPipeline implements it; the app
// layer wraps it to choose a writing or a dry-run gateway per request.
type SyncRunner interface {
	Run(ctx context.Context, req SyncRequest) (*SyncReport, error)
}

// SyncNotifier is told about every successful sync.
type SyncNotifier interface {
	NotifySynced(ctx context.Context, summary models.SyncSummary) error
}

// SyncRequest describes one sync run.
type SyncRequest struct {
	ThreadURL   string
	SenderEmail string
	ContactName string
	// HTML, when set, is parsed instead of fetching ThreadURL.
	HTML string
	// DryRun marks the run in the summary; the caller supplies a gateway
	// that does not write.
	DryRun   bool
	Observer ProgressObserver
}

// SyncReport is the outcome of a successful sync run.
type SyncReport struct {
	RunID    string
	Thread   models.Thread
	Warnings []ParseWarning
	Result   models.SyncResult
	// Planned lists the CRM writes a dry run skipped.
	Planned []string
}

// SyncPipeline runs fetch, parse and reconcile as one sequence of fallible
// steps. The first failing step ends the run.
type SyncPipeline struct {
	settings  models.Settings
	fetcher   ThreadFetcher
	parser    *ThreadParser
	gateway   RecordGateway
	events    EventLogger
	notifiers []SyncNotifier
	validator SettingsValidator
}

// SettingsValidator checks that settings are complete enough to sync.
type SettingsValidator interface {
	ValidateSettings(s *models.Settings) error
}

// NewSyncPipeline creates a SyncPipeline. fetcher may be nil when every
// request carries its HTML; events may be nil.
func NewSyncPipeline(settings models.Settings, fetcher ThreadFetcher, parser *ThreadParser, gateway RecordGateway, events EventLogger, notifiers ...SyncNotifier) *SyncPipeline {
	if parser == nil {
		parser = NewThreadParser(MarkupFromSettings(settings.Source.Markup))
	}
	return &SyncPipeline{
		settings:  settings,
		fetcher:   fetcher,
		parser:    parser,
		gateway:   gateway,
		events:    events,
		notifiers: notifiers,
	}
}

// WithValidator makes every run check its settings first, so incomplete
// configuration is recorded as a failed run.
func (p *SyncPipeline) WithValidator(v SettingsValidator) *SyncPipeline {
	p.validator = v
	return p
}

// Run executes the pipeline for req.
func (p *SyncPipeline) Run(ctx context.Context, req SyncRequest) (*SyncReport, error) {
	runID := uuid.NewString()
	observer := req.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	events := &runEventLogger{runID: runID, next: p.events}
	_ = events.LogEvent("sync.started", map[string]any{
		"thread_url": req.ThreadURL,
		"sender":     req.SenderEmail,
		"contact":    req.ContactName,
		"dry_run":    req.DryRun,
	})

	report, err := p.run(ctx, req, observer, events)
	if err != nil {
		_ = events.LogEvent("sync.failed", map[string]any{
			"error": err.Error(),
			"kind":  errorKind(err),
		})
		return nil, err
	}
	report.RunID = runID

	_ = events.LogEvent("sync.completed", map[string]any{
		"person_id":   report.Result.PersonID,
		"deal_id":     report.Result.DealID,
		"notes_added": report.Result.NotesAdded,
		"action":      string(report.Result.Action),
		"dry_run":     req.DryRun,
	})
	observer.Progress(StepDone, fmt.Sprintf("%s: %d note(s) added to deal #%d", report.Result.Action, report.Result.NotesAdded, report.Result.DealID))

	summary := models.SyncSummary{
		RunID:       runID,
		ThreadURL:   req.ThreadURL,
		Sender:      req.SenderEmail,
		ContactName: req.ContactName,
		Messages:    report.Thread.Len(),
		Result:      report.Result,
		DryRun:      req.DryRun,
		FinishedAt:  time.Now().UTC(),
	}
	for _, n := range p.notifiers {
		if err := n.NotifySynced(ctx, summary); err != nil {
			// Non-fatal: the CRM already holds the result.
			_ = events.LogEvent("notify.failed", map[string]any{"error": err.Error()})
		}
	}
	return report, nil
}

func (p *SyncPipeline) run(ctx context.Context, req SyncRequest, observer ProgressObserver, events EventLogger) (*SyncReport, error) {
	if p.validator != nil {
		if err := p.validator.ValidateSettings(&p.settings); err != nil {
			return nil, err
		}
	}
	sender, err := p.settings.Sender(req.SenderEmail)
	if err != nil {
		return nil, err
	}

	raw := req.HTML
	if raw == "" {
		if p.fetcher == nil {
			return nil, &models.ConfigurationError{Key: "source", Reason: "no thread fetcher configured"}
		}
		observer.Progress(StepFetch, req.ThreadURL)
		raw, err = p.fetcher.FetchThread(ctx, req.ThreadURL)
		if err != nil {
			return nil, err
		}
	}

	thread, warnings, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		observer.Progress(StepWarning, w.String())
		_ = events.LogEvent("parse.warning", map[string]any{"message_id": w.MessageID, "reason": w.Reason})
	}
	observer.Progress(StepParse, fmt.Sprintf("%d message(s)", thread.Len()))
	_ = events.LogEvent("thread.parsed", map[string]any{"messages": thread.Len(), "skipped": len(warnings)})
	if thread.Len() == 0 {
		return nil, &models.EmptyThreadError{}
	}

	fields := DealFields{
		OwnerID:        p.settings.CRM.OwnerID,
		ChannelFieldID: p.settings.CRM.ChannelFieldID,
		CompanyFieldID: p.settings.CRM.CompanyFieldID,
	}
	result, err := NewReconciler(p.gateway, fields, observer, events).Reconcile(ctx, ReconcileInput{
		Thread:      thread,
		Sender:      sender,
		ContactName: req.ContactName,
		ThreadURL:   req.ThreadURL,
	})
	if err != nil {
		return nil, err
	}

	return &SyncReport{
		Thread:   thread,
		Warnings: warnings,
		Result:   *result,
	}, nil
}

// runEventLogger tags every event of one run with its run id.
type runEventLogger struct {
	runID string
	next  EventLogger
}

func (l *runEventLogger) LogEvent(eventType string, data map[string]any) error {
	if l.next == nil {
		return nil
	}
	tagged := make(map[string]any, len(data)+1)
	for k, v := range data {
		tagged[k] = v
	}
	tagged["run_id"] = l.runID
	return l.next.LogEvent(eventType, tagged)
}

// errorKind classifies err for the event log.
func errorKind(err error) string {
	var (
		sessionErr *models.SessionExpiredError
		parseErr   *models.ParseError
		emptyErr   *models.EmptyThreadError
		gatewayErr *models.GatewayError
		configErr  *models.ConfigurationError
	)
	switch {
	case errors.Is(err, models.ErrNoSession):
		return "no_session"
	case errors.As(err, &sessionErr):
		return "session_expired"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &emptyErr):
		return "empty_thread"
	case errors.As(err, &gatewayErr):
		return "gateway"
	case errors.As(err, &configErr):
		return "configuration"
	default:
		return "other"
	}
}
