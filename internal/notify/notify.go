// Package notify delivers best-effort text messages to users identified by
// an opaque external account id. Delivery failures are reported to the
// caller but are never fatal to the operation that produced the message.
package notify

// Notifier sends a text message to a user. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Send(externalID, text string) error
}

// Noop discards every message. Used when no bot token is configured.
type Noop struct{}

func (Noop) Send(string, string) error { return nil }
