// Package storage persists the authenticated marketplace session captured
// by the browser login flow.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/crmsync/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrNoSession is returned by Load when no session has been saved.
var ErrNoSession = models.ErrNoSession

// SessionStore loads and saves the session cookie artifact.
type SessionStore interface {
	Load(ctx context.Context) (models.SessionCookies, error)
	Save(ctx context.Context, session models.SessionCookies) error
	Clear(ctx context.Context) error
	// Location describes where the session is kept, for display.
	Location() string
}

// fileSessionStore keeps the session as a YAML file readable only by the owner.
type fileSessionStore struct {
	path string
}

// NewFileSessionStore creates a SessionStore backed by the YAML file at path.
func NewFileSessionStore(path string) SessionStore {
	return &fileSessionStore{path: path}
}

func (s *fileSessionStore) Location() string { return s.path }

// Load reads the session file. A missing file yields ErrNoSession.
func (s *fileSessionStore) Load(_ context.Context) (models.SessionCookies, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.SessionCookies{}, ErrNoSession
		}
		return models.SessionCookies{}, fmt.Errorf("reading session file: %w", err)
	}

	var session models.SessionCookies
	if err := yaml.Unmarshal(data, &session); err != nil {
		return models.SessionCookies{}, fmt.Errorf("parsing session file %s: %w", s.path, err)
	}
	if len(session.Cookies) == 0 {
		return models.SessionCookies{}, ErrNoSession
	}
	return session, nil
}

// Save writes the session atomically via a temp file and rename.
func (s *fileSessionStore) Save(_ context.Context, session models.SessionCookies) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Clear removes the session file. Clearing a missing session is not an error.
func (s *fileSessionStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
