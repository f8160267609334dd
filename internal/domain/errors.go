package domain

import "errors"

// Error taxonomy shared by every service. Services wrap these sentinels
// with context (fmt.Errorf("%w: ...", domain.ErrConflict)) and callers
// match with errors.Is.
var (
	// ErrValidation marks malformed input. Caller's fault, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state-invariant violation (e.g. an unresolved
	// bundle already exists, or an illegal status transition).
	ErrConflict = errors.New("conflict")
	// ErrNotEligible marks an operation refused because of the owning
	// contact's state (bounced, unsubscribed, lost).
	ErrNotEligible = errors.New("not eligible")
	// ErrAlreadyIssued is returned when a bundle already has a tracking token.
	ErrAlreadyIssued = errors.New("tracking token already issued")
	// ErrAlreadyPromoted is returned when a signal was already promoted.
	ErrAlreadyPromoted = errors.New("signal already promoted")
	// ErrTransientSend marks a transport failure the caller may retry.
	ErrTransientSend = errors.New("transient send failure")
	// ErrDuplicate marks an idempotent no-op (the record already exists).
	ErrDuplicate = errors.New("duplicate")
	// ErrNoTemplate is returned by template resolvers when no template
	// matches the requested key.
	ErrNoTemplate = errors.New("no template")
	// ErrCadenceExhausted is returned when a follow-up cadence has no
	// offsets left for the contact.
	ErrCadenceExhausted = errors.New("cadence exhausted")
)

// IsRetryable reports whether err may be retried by the caller. Only
// transport failures qualify; state-machine violations never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientSend)
}
