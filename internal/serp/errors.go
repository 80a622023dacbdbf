package serp

import "fmt"

// AuthError means the vendor rejected our credentials. It is fatal: the caller
// must stop issuing searches, since retrying cannot help.
type AuthError struct {
	Vendor  string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Vendor, e.Message)
}

// RateLimitError means the vendor signaled a quota or rate limit (HTTP 429 or
// a vendor-specific quota message). The caller may wait and retry once.
type RateLimitError struct {
	Vendor string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited", e.Vendor)
}

// NetworkError wraps a transport-level failure talking to the vendor. The
// caller skips the query and moves on.
type NetworkError struct {
	Vendor string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Vendor, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
