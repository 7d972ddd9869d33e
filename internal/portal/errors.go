package portal

import "errors"

// Sentinel errors for the three failure classes callers distinguish.
// All returned errors wrap one of these.
var (
	// ErrNetwork covers connection failures and timeouts after retries.
	ErrNetwork = errors.New("portal: network failure")
	// ErrParse covers malformed RSS or card payloads.
	ErrParse = errors.New("portal: malformed response")
	// ErrQuota covers portal rate limiting (HTTP 429 or reset storms).
	ErrQuota = errors.New("portal: rate limited")
)
