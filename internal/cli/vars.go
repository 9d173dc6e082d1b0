package cli

import (
	"context"
	"log/slog"

	"github.com/valter-silva-au/crmsync/internal/core"
	"github.com/valter-silva-au/crmsync/internal/observability"
	"github.com/valter-silva-au/crmsync/internal/storage"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// SessionCapturer runs an interactive marketplace login and returns the
// resulting cookies.
type SessionCapturer interface {
	LoginURL() string
	CaptureSession(ctx context.Context) (models.SessionCookies, error)
}

// InitOptions carries the root command's persistent flags to the app layer.
type InitOptions struct {
	ConfigFile string
	Verbose    bool
}

// Initialize is set by app.go and called once flags are parsed, before any
// command other than version runs. It populates the service variables below.
var Initialize func(opts InitOptions) error

// Service instances, set during app initialization in app.go.
var (
	Settings     *models.Settings
	Logger       *slog.Logger
	Parser       *core.ThreadParser
	Syncer       core.SyncRunner
	SessionStore storage.SessionStore
	Browser      SessionCapturer
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
)
