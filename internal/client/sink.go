// Package client implements the receiver half of a MIDInet client: dual
// multicast stream subscription, active-stream failover, jitter
// buffering, cross-stream dedup, and journal-backed reconciliation after
// a switch, applied to a local virtual MIDI device.
package client

import "github.com/hakolsound/midinet/internal/wire"

// MidiSink is the narrow interface the monitor writes decoded messages
// to. internal/vmidi.Device satisfies it; tests use an in-memory fake so
// this package never has to import vmidi (component ordering, §2).
type MidiSink interface {
	Write(msg wire.MidiMessage) error
}

// SinkFunc adapts a plain function to MidiSink.
type SinkFunc func(msg wire.MidiMessage) error

func (f SinkFunc) Write(msg wire.MidiMessage) error { return f(msg) }
