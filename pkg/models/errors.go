package models

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned when no marketplace session has been saved.
var ErrNoSession = errors.New("no saved marketplace session; run `crmsync login` first")

// SessionExpiredError reports that an authenticated fetch landed on the
// login page instead of the requested thread.
type SessionExpiredError struct {
	URL string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: request was redirected to %s; run `crmsync login` again", e.URL)
}

// ParseError reports thread markup that is missing or implausible.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parsing thread: " + e.Reason
}

// EmptyThreadError reports a thread with zero messages.
type EmptyThreadError struct{}

func (e *EmptyThreadError) Error() string {
	return "thread contains no messages"
}

// GatewayError reports a failed or rejected call to the CRM API.
type GatewayError struct {
	Op      string
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("crm %s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	case e.Message != "":
		return fmt.Sprintf("crm %s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("crm %s: HTTP %d", e.Op, e.Status)
	}
}

// ConfigurationError reports missing credentials, an unknown sender or an
// unresolvable custom field.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}
