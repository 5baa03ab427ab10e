// Package lifecycle holds the process-wide shutdown flag shared by the health
// endpoint and the signal handler.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Called when SIGTERM/SIGINT is
// received; the health endpoint reports shutting-down with a 503 while set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
