package lottery

import "errors"

// Classified failure kinds. Handlers map these onto user-facing messages;
// every one of them leaves the store untouched.
var (
	// ErrNotFound means a referenced draw, ticket or winner id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means a status guard failed (e.g. approving a
	// ticket that is not pending_payment).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTicketUnavailable means a reservation raced or targeted a ticket
	// that is not available.
	ErrTicketUnavailable = errors.New("ticket unavailable")

	// ErrAlreadyExecuted means the draw has already been executed.
	ErrAlreadyExecuted = errors.New("draw already executed")

	// ErrNoEligibleTickets means execution was attempted with zero
	// approved tickets.
	ErrNoEligibleTickets = errors.New("no eligible tickets")

	// ErrValidation means malformed input, e.g. missing reservation fields.
	ErrValidation = errors.New("validation failed")
)
