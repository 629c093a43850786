//go:build linux || darwin

package main

import "syscall"

// applyMemoryLimit caps the child's address space. Failure is ignored: some
// platforms and container runtimes refuse RLIMIT_AS, and the parent's
// wall-clock timeout still bounds the execution.
func applyMemoryLimit(maxMemoryMB int) {
	if maxMemoryMB <= 0 {
		return
	}
	limit := uint64(maxMemoryMB) * 1024 * 1024
	_ = syscall.Setrlimit(syscall.RLIMIT_AS, &syscall.Rlimit{Cur: limit, Max: limit})
}
