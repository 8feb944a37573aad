//go:build arm64

package main

// wfeIdle's body lives in idle_arm64.s: a bare WFE, used by the shell's
// read loop while the RX ring is empty instead of busy-polling, and by the
// halt loop Main enters when MMU verification fails.
func wfeIdle()
