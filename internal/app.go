// Package internal provides the App struct that wires all components of
// crmsync together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/valter-silva-au/crmsync/internal/cli"
	"github.com/valter-silva-au/crmsync/internal/core"
	"github.com/valter-silva-au/crmsync/internal/integration"
	"github.com/valter-silva-au/crmsync/internal/observability"
	"github.com/valter-silva-au/crmsync/internal/storage"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// App holds all service dependencies of crmsync.
type App struct {
	Home string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Settings  *models.Settings
	Logger    *slog.Logger

	// Core services
	Parser *core.ThreadParser
	Syncer *SyncService

	// Storage layer
	SessionStore storage.SessionStore

	// Integration services
	Browser *integration.BrowserLogin

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator

	closers []func() error
}

// NewApp creates an App rooted at home and registers its initializer with
// the CLI. Services are wired by Init once command-line flags are known.
func NewApp(home string) *App {
	app := &App{Home: home}
	cli.Initialize = app.Init
	return app
}

// Init loads configuration and wires every service. Failures to open the
// event log or optional notifiers are logged and leave that feature off.
func (a *App) Init(opts cli.InitOptions) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	a.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// --- Configuration ---
	a.ConfigMgr = core.NewConfigurationManager(a.Home, opts.ConfigFile)
	settings, err := a.ConfigMgr.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a.Settings = settings

	// --- Core services ---
	a.Parser = core.NewThreadParser(core.MarkupFromSettings(settings.Source.Markup))

	// --- Storage layer ---
	a.SessionStore, err = a.newSessionStore(settings)
	if err != nil {
		return err
	}

	// --- Integration services ---
	a.Browser = integration.NewBrowserLogin(integration.BrowserLoginConfig{
		BaseURL:   settings.Source.BaseURL,
		LoginPath: settings.Source.LoginPath,
		UserAgent: settings.Source.UserAgent,
		Headless:  settings.Session.BrowserHeadless,
	})

	// --- Observability ---
	if err := os.MkdirAll(filepath.Dir(settings.Events.Path), 0o755); err != nil {
		a.Logger.Warn("event log disabled", "path", settings.Events.Path, "error", err)
	} else if a.EventLog, err = observability.NewJSONLEventLog(settings.Events.Path); err != nil {
		// Non-fatal: run without the event log.
		a.Logger.Warn("event log disabled", "path", settings.Events.Path, "error", err)
		a.EventLog = nil
	}
	if a.EventLog != nil {
		a.MetricsCalc = observability.NewMetricsCalculator(a.EventLog)
		a.closers = append(a.closers, a.EventLog.Close)
	}

	a.Syncer = &SyncService{app: a}

	// --- Wire CLI package-level variables ---
	cli.Settings = a.Settings
	cli.Logger = a.Logger
	cli.Parser = a.Parser
	cli.Syncer = a.Syncer
	cli.SessionStore = a.SessionStore
	cli.Browser = a.Browser
	cli.EventLog = a.EventLog
	cli.MetricsCalc = a.MetricsCalc

	return nil
}

func (a *App) newSessionStore(settings *models.Settings) (storage.SessionStore, error) {
	if settings.Session.RedisURL == "" {
		return storage.NewFileSessionStore(settings.Session.Path), nil
	}
	u, err := url.Parse(settings.Source.BaseURL)
	if err != nil || u.Host == "" {
		return nil, &models.ConfigurationError{Key: "source.base_url", Reason: fmt.Sprintf("%q is not an absolute URL", settings.Source.BaseURL)}
	}
	store, err := storage.NewRedisSessionStore(settings.Session.RedisURL, u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("opening redis session store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Close releases resources held by the App, such as the event log file
// handle and broker connections. It is safe to call on an uninitialized App.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// ResolveHome determines the crmsync data directory. It checks the
// CRMSYNC_HOME env var, then falls back to ~/.crmsync.
func ResolveHome() string {
	if home := os.Getenv("CRMSYNC_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".crmsync")
	}
	return filepath.Join(userHome, ".crmsync")
}

// --- Sync service ---

// SyncService builds a SyncPipeline per request and swaps in a dry-run
// gateway when asked. Settings validation and session loading happen inside
// the run so their failures reach the event log. It implements
// core.SyncRunner.
type SyncService struct {
	app *App

	notifyOnce sync.Once
	notifiers  []core.SyncNotifier
}

// Run executes one sync request.
func (s *SyncService) Run(ctx context.Context, req core.SyncRequest) (*core.SyncReport, error) {
	a := s.app
	client := integration.NewPipedriveClient(a.Settings.CRM, a.Logger)
	var (
		gateway core.RecordGateway = client
		dryRun  *integration.DryRunGateway
	)
	if req.DryRun {
		dryRun = integration.NewDryRunGateway(client)
		gateway = dryRun
	}

	var events core.EventLogger
	if a.EventLog != nil {
		events = a.EventLog
	}

	var notifiers []core.SyncNotifier
	if !req.DryRun {
		notifiers = s.loadNotifiers()
	}

	fetcher := &sessionFetcher{app: a}
	pipeline := core.NewSyncPipeline(*a.Settings, fetcher, a.Parser, gateway, events, notifiers...).
		WithValidator(a.ConfigMgr)
	report, err := pipeline.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if dryRun != nil {
		for _, p := range dryRun.Planned() {
			report.Planned = append(report.Planned, p.Op+": "+p.Summary)
		}
	}
	return report, nil
}

// sessionFetcher loads the saved session when a page is first needed and
// fetches with it.
type sessionFetcher struct {
	app *App
}

func (f *sessionFetcher) FetchThread(ctx context.Context, threadURL string) (string, error) {
	a := f.app
	session, err := a.SessionStore.Load(ctx)
	if err != nil {
		return "", err
	}
	httpFetcher, err := integration.NewHTTPThreadFetcher(a.Settings.Source, session, a.Logger)
	if err != nil {
		return "", err
	}
	return httpFetcher.FetchThread(ctx, threadURL)
}

// loadNotifiers connects the configured notifiers on first use. A notifier
// that cannot be set up is logged and skipped.
func (s *SyncService) loadNotifiers() []core.SyncNotifier {
	s.notifyOnce.Do(func() {
		a := s.app
		cfg := a.Settings.Events
		if cfg.SlackWebhook != "" {
			s.notifiers = append(s.notifiers, observability.NewSlackNotifier(cfg.SlackWebhook))
		}
		if cfg.AMQPURL != "" {
			n, closeFn, err := observability.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, a.Logger)
			if err != nil {
				a.Logger.Warn("amqp notifications disabled", "error", err)
			} else {
				s.notifiers = append(s.notifiers, n)
				a.closers = append(a.closers, closeFn)
			}
		}
	})
	return s.notifiers
}
