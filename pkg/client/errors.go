package client

import "errors"

// Sentinel errors for the three terminal failure classes. Probe with
// errors.Is; the wrapped message carries the server's detail.
var (
	// ErrUnauthorized covers credential failures: a missing, unknown
	// or rotated organisation key, or a suspended organisation.
	// Retrying cannot help until the credential changes.
	ErrUnauthorized = errors.New("client: organisation key rejected")

	// ErrInvalidRequest covers requests the gate refused to process,
	// such as a malformed device identifier.
	ErrInvalidRequest = errors.New("client: request rejected")

	// ErrUnavailable covers infrastructure failures: network errors
	// and responses the gate marked retryable. The client has already
	// retried with backoff by the time this is returned.
	ErrUnavailable = errors.New("client: gate unavailable")
)
