package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (EventLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log, _ := newTestLog(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	events := []Event{
		{Time: now, Level: "INFO", Type: "sync.started", RunID: "run-1", Data: map[string]any{"sender": "sales@example.lv"}},
		{Time: now.Add(time.Second), Level: "WARN", Type: "parse.warning", RunID: "run-1", Data: map[string]any{"message_id": "7"}},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if result[0].Type != "sync.started" || !result[0].Time.Equal(now) || result[0].RunID != "run-1" {
		t.Errorf("unexpected first event: %+v", result[0])
	}
	if result[1].Data["message_id"] != "7" {
		t.Errorf("unexpected data: %v", result[1].Data)
	}
}

func TestEventLog_LogEvent(t *testing.T) {
	log, _ := newTestLog(t)
	fixed := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	log.(*jsonlEventLog).now = func() time.Time { return fixed }

	if err := log.LogEvent("sync.failed", map[string]any{"run_id": "run-9", "error": "boom", "kind": "gateway"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := log.LogEvent("note.added", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	failed := events[0]
	if failed.Level != "ERROR" || failed.RunID != "run-9" || failed.Message != "boom" || !failed.Time.Equal(fixed) {
		t.Errorf("unexpected failed event: %+v", failed)
	}
	if _, ok := failed.Data["run_id"]; ok {
		t.Error("run_id should be lifted out of data")
	}
	if failed.Data["kind"] != "gateway" {
		t.Errorf("kind = %v", failed.Data["kind"])
	}
	if events[1].Level != "INFO" || events[1].Data != nil {
		t.Errorf("unexpected note event: %+v", events[1])
	}
}

func TestLevelFor(t *testing.T) {
	tests := map[string]string{
		"sync.failed":    "ERROR",
		"notify.failed":  "ERROR",
		"parse.warning":  "WARN",
		"sync.completed": "INFO",
		"note.added":     "INFO",
	}
	for eventType, want := range tests {
		if got := levelFor(eventType); got != want {
			t.Errorf("levelFor(%q) = %q, want %q", eventType, got, want)
		}
	}
}

func TestEventLog_Filters(t *testing.T) {
	log, _ := newTestLog(t)
	base := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	for i, e := range []Event{
		{Type: "sync.started", RunID: "a"},
		{Type: "note.added", RunID: "a"},
		{Type: "sync.completed", RunID: "a"},
		{Type: "sync.started", RunID: "b"},
		{Type: "sync.failed", RunID: "b"},
	} {
		e.Time = base.Add(time.Duration(i) * time.Hour)
		e.Level = levelFor(e.Type)
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	since := base.Add(2 * time.Hour)
	until := base.Add(3 * time.Hour)
	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{"all", EventFilter{}, 5},
		{"type prefix", EventFilter{TypePrefix: "sync."}, 4},
		{"run id", EventFilter{RunID: "b"}, 2},
		{"since", EventFilter{Since: &since}, 3},
		{"window", EventFilter{Since: &since, Until: &until}, 2},
		{"combined", EventFilter{RunID: "a", TypePrefix: "sync."}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := log.Read(tt.filter)
			if err != nil {
				t.Fatalf("reading events: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)
	if err := log.LogEvent("sync.started", nil); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{truncated\n\n")
	_ = f.Close()
	if err := log.LogEvent("sync.completed", nil); err != nil {
		t.Fatal(err)
	}

	events, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 valid events, got %d", len(events))
	}
}

func TestEventLog_ReadMissingFile(t *testing.T) {
	l := &jsonlEventLog{path: filepath.Join(t.TempDir(), "missing.jsonl")}

	events, err := l.Read(EventFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestEventLog_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestEventLog_ConcurrentWrites(t *testing.T) {
	log, _ := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = log.LogEvent("note.added", map[string]any{"message_id": fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	events, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(events) != 20 {
		t.Errorf("expected 20 events, got %d", len(events))
	}
}
