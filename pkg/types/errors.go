package types

import "errors"

// Error taxonomy shared across providers, the HTTP layer, and the
// sync client. Callers match with errors.Is.
var (
	// ErrUnauthorized means a token was missing or invalid while a
	// secret is configured. Fatal for the request, never retried
	// automatically.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the named sheet does not exist or is empty.
	ErrNotFound = errors.New("sheet not found")

	// ErrSchema means the configured key column is absent from the
	// sheet's headers. A configuration issue, surfaced to the caller.
	ErrSchema = errors.New("key column missing from headers")

	// ErrTransient covers network, timeout and server errors. The
	// sync client retries on the next scheduled tick with previous
	// state preserved.
	ErrTransient = errors.New("transient failure")

	// ErrResyncRequired is a protocol signal, not a failure: the
	// client's baseline is unusable and a full snapshot is needed.
	ErrResyncRequired = errors.New("full resync required")

	// ErrCorruptRecord marks a single change-log entry that failed to
	// parse. Skipped and logged; never fails the batch.
	ErrCorruptRecord = errors.New("corrupt change record")
)

// IsRetryable reports whether an error should be retried on the next
// poll tick rather than surfaced as terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
