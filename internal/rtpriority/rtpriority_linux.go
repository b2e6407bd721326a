//go:build linux

package rtpriority

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Enable locks the calling goroutine to its current OS thread and sets
// that thread's scheduling policy to SCHED_FIFO at priority (DefaultPriority
// when priority is 0). Callers that need the elevated priority for their
// whole lifetime (ingress reader, virtual-device I/O loop) should call
// this once at the top of their run loop, before entering it; the thread
// lock is never released, since handing a SCHED_FIFO thread back to the
// Go scheduler's general pool would let ordinary goroutines inherit it.
//
// Enable requires CAP_SYS_NICE (or root); a permission failure is
// returned rather than silently downgrading, so callers can decide
// whether to log-and-continue at normal priority or fail hard.
func Enable(priority int) error {
	if priority <= 0 {
		priority = DefaultPriority
	}
	runtime.LockOSThread()

	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("rtpriority: SCHED_FIFO priority %d: %w", priority, err)
	}
	return nil
}

// Available reports whether Enable has any chance of succeeding on this
// platform — always true on Linux; actual success still depends on the
// process's capabilities.
func Available() bool { return true }
