// Package observability records what sync runs did. Events are appended to
// a JSON Lines log, metrics are derived from it on demand, and notifiers
// announce completed syncs to Slack or an AMQP exchange.
package observability
