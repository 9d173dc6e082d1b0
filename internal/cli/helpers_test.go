package cli

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/valter-silva-au/crmsync/internal/core"
	"github.com/valter-silva-au/crmsync/internal/observability"
	"github.com/valter-silva-au/crmsync/internal/storage"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// captureStdout redirects os.Stdout while fn runs and returns what was written.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = origStdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading pipe: %v", err)
	}
	return string(out)
}

// --- Fakes ---

type fakeSyncRunner struct {
	report *core.SyncReport
	err    error
	got    []core.SyncRequest
}

func (f *fakeSyncRunner) Run(_ context.Context, req core.SyncRequest) (*core.SyncReport, error) {
	f.got = append(f.got, req)
	if req.Observer != nil {
		req.Observer.Progress(core.StepParse, "2 message(s)")
	}
	return f.report, f.err
}

func sampleReport() *core.SyncReport {
	return &core.SyncReport{
		RunID: "run-123",
		Thread: models.NewThread([]models.Message{
			{ID: "3", Text: "Labdien", Direction: models.DirectionReceived},
			{ID: "5", Text: "Jā", Direction: models.DirectionSent},
		}),
		Result: models.SyncResult{PersonID: 11, DealID: 22, NotesAdded: 2, Action: models.ActionCreatedNewDeal},
	}
}

type fakeSessionStore struct {
	session models.SessionCookies
	loadErr error
	saved   []models.SessionCookies
	cleared bool
}

func (s *fakeSessionStore) Load(context.Context) (models.SessionCookies, error) {
	if s.loadErr != nil {
		return models.SessionCookies{}, s.loadErr
	}
	return s.session, nil
}

func (s *fakeSessionStore) Save(_ context.Context, session models.SessionCookies) error {
	s.saved = append(s.saved, session)
	return nil
}

func (s *fakeSessionStore) Clear(context.Context) error {
	s.cleared = true
	return nil
}

func (s *fakeSessionStore) Location() string { return "/tmp/crmsync/session.yaml" }

var _ storage.SessionStore = (*fakeSessionStore)(nil)

type fakeCapturer struct {
	session models.SessionCookies
	err     error
}

func (c *fakeCapturer) LoginURL() string { return "https://www.ss.lv/login" }

func (c *fakeCapturer) CaptureSession(context.Context) (models.SessionCookies, error) {
	return c.session, c.err
}

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	err     error
	since   time.Time
}

func (f *fakeMetricsCalculator) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, f.err
}
