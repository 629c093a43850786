//go:build !linux && !darwin

package main

// applyMemoryLimit is a no-op where the platform has no address-space
// rlimit; the parent's wall-clock timeout is the backstop.
func applyMemoryLimit(maxMemoryMB int) {}
