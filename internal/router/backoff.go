package router

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy defines exponential backoff between retry attempts.
type BackoffPolicy struct {
	// InitialMs is the base delay in milliseconds for the first retry.
	InitialMs float64
	// MaxMs caps the computed delay.
	MaxMs float64
	// Factor is the exponential growth factor per attempt.
	Factor float64
	// JitterMs is the upper bound of the uniform random addition.
	JitterMs float64
}

// defaultBackoff matches the router contract: base 2s, factor 2, up to 1s of
// jitter, capped at 30s.
func defaultBackoff() BackoffPolicy {
	return BackoffPolicy{InitialMs: 2000, MaxMs: 30000, Factor: 2, JitterMs: 1000}
}

// ComputeBackoff returns the delay before retrying after the given 1-indexed
// attempt: min(initial * factor^(attempt-1) + U(0, jitter), max).
func ComputeBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeBackoffWithRand is ComputeBackoff with an injected random value in
// [0.0, 1.0), for deterministic tests.
func ComputeBackoffWithRand(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	total := math.Min(policy.MaxMs, base+policy.JitterMs*randomValue)
	return time.Duration(math.Round(total)) * time.Millisecond
}
