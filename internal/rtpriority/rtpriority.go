// Package rtpriority raises the calling goroutine's backing OS thread to
// real-time scheduling priority, per SPEC_FULL.md §5: the MIDI ingress
// reader and virtual-device I/O loops ask for this so the kernel
// scheduler can't starve them behind ordinary timesharing work. Linux
// gets SCHED_FIFO via direct golang.org/x/sys/unix syscalls, the same
// low-level-unix idiom the teacher uses for device control in
// src/ptt.go and src/cm108.go; every other platform gets a no-op stub,
// mirroring the teacher's own platform-conditional PTT files.
package rtpriority

// DefaultPriority is the SCHED_FIFO priority requested on Linux,
// matching spec.md §5's priority-80 figure.
const DefaultPriority = 80
