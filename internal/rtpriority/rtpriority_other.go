//go:build !linux

package rtpriority

// Enable is a no-op stub outside Linux: SCHED_FIFO has no portable
// equivalent the other build targets expose through x/sys, and the
// teacher's own PTT code takes the same platform-conditional approach
// rather than faking real-time scheduling elsewhere.
func Enable(priority int) error { return nil }

// Available reports false outside Linux.
func Available() bool { return false }
