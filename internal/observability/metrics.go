package observability

import (
	"fmt"
	"time"
)

// Metrics summarises sync activity derived from the event log.
type Metrics struct {
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
	OldestEvent    *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent    *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator that reads from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event since the given time. Dry runs count as
// runs but their note.added events are excluded from NotesAdded.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		FailuresByKind: make(map[string]int),
		ActionCounts:   make(map[string]int),
		EventCount:     len(events),
	}

	dryRuns := make(map[string]bool)
	for _, event := range events {
		if event.Type == "sync.started" && event.Data["dry_run"] == true {
			dryRuns[event.RunID] = true
		}
	}

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		dry := event.RunID != "" && dryRuns[event.RunID]
		switch event.Type {
		case "sync.started":
			m.Runs++
			if dry {
				m.DryRuns++
			}
		case "sync.completed":
			m.Completed++
			if action, ok := event.Data["action"].(string); ok {
				m.ActionCounts[action]++
			}
		case "sync.failed":
			m.Failed++
			kind, _ := event.Data["kind"].(string)
			if kind == "" {
				kind = "other"
			}
			m.FailuresByKind[kind]++
		case "person.created":
			if !dry {
				m.PersonsCreated++
			}
		case "deal.created":
			if !dry {
				m.DealsCreated++
			}
		case "note.added":
			if !dry {
				m.NotesAdded++
			}
		case "parse.warning":
			m.ParseWarnings++
		}
	}

	return m, nil
}
