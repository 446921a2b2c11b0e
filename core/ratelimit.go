package core

import "context"

// RateLimiter bounds how often an action keyed by a caller-chosen string
// may run within the implementation's window.
type RateLimiter interface {
	// Allow reports whether the action identified by key may proceed.
	// A backend failure must fail open (true, err) so that a rate-limiter
	// outage never locks users out.
	Allow(ctx context.Context, key string) (bool, error)
}
