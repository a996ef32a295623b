// Package signalbus decouples cross-cutting failure notifications from the
// code that detects them.
//
// The transport layer publishes api-error advisories and unauthorized
// session-loss events here without knowing who listens; the CLI registers
// subscribers that turn them into user-facing output. Publishing is
// synchronous and fans out to every subscriber registered for the channel at
// publish time.
//
// Subscribers receive a token from Subscribe and use it to unregister;
// nothing in this package depends on subscriber identity beyond that token.
package signalbus
