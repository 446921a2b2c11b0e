package ratelimitsvc

import "context"

// noopLimiter allows everything; used when Redis is not configured, and in
// tests that are not about throttling.
type noopLimiter struct{}

func NewNoopLimiter() *noopLimiter { return &noopLimiter{} }

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
