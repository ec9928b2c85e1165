package domain

import "errors"

var ErrMissingFields = errors.New("missing required fields")

// Fatal-to-job conditions. The queue consumer acknowledges these instead
// of leaving the message for redrive: retrying cannot succeed.
var (
	ErrPostNotFound         = errors.New("post not found")
	ErrNoCredential         = errors.New("no bot credential configured")
	ErrEmptyContent         = errors.New("post has no text to send")
	ErrChannelNotConfigured = errors.New("bot has no channel configured")
	ErrChannelUnreachable   = errors.New("channel not found or bot has no access")
)

// Fatal-to-call, recoverable-by-retry conditions. The HTTP boundary maps
// these to specific status codes so the caller can fix and retry.
var (
	ErrNotConfigured        = errors.New("telegram api credentials not configured")
	ErrNotAuthenticated     = errors.New("no authenticated session")
	ErrSecondFactorRequired = errors.New("second factor password required")
	ErrLoginExpired         = errors.New("login code hash unknown or expired")
	ErrChannelNotTracked    = errors.New("channel has never been parsed for this owner")
)

// Per-recipient condition during fan-out; flips the subscriber to blocked
// and never aborts the batch.
var ErrRecipientUnreachable = errors.New("recipient blocked or unreachable")

// Fatal reports whether a dispatch error is terminal for the job. Anything
// not listed here is treated as transient and left to the queue's redrive.
func Fatal(err error) bool {
	for _, e := range []error{
		ErrPostNotFound,
		ErrNoCredential,
		ErrEmptyContent,
		ErrChannelNotConfigured,
		ErrChannelUnreachable,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
