// Package pipeline implements the configurable, hot-reloadable ingress
// transform chain applied to every MIDI message on the host before it
// reaches the state journal and the dual multicast emit (spec.md §4.4).
package pipeline

import (
	"sync/atomic"

	"github.com/hakolsound/midinet/internal/wire"
)

// Stage transforms or drops one message. ok is false when the stage
// drops the message; the pipeline stops evaluating further stages.
type Stage interface {
	Apply(msg wire.MidiMessage) (out wire.MidiMessage, ok bool)
}

// Pipeline is an ordered, immutable list of stages. Build a new one and
// publish it through a Publisher rather than mutating Stages in place.
type Pipeline struct {
	Stages []Stage
}

// Process runs msg through every stage in order, stopping early if any
// stage drops it. It never allocates beyond what an individual stage's
// Apply allocates; the built-in stages below mutate msg.Bytes in place
// and never reslice or copy.
func (p *Pipeline) Process(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	if p == nil {
		return msg, true
	}
	ok := true
	for _, s := range p.Stages {
		msg, ok = s.Apply(msg)
		if !ok {
			return wire.MidiMessage{}, false
		}
	}
	return msg, true
}

// Publisher holds the single hot-swappable Pipeline pointer read by the
// real-time ingress path. Builders construct a new *Pipeline off-path and
// call Store; the reader's next Load sees it atomically, satisfying the
// read-copy-update contract in spec.md §5 ("Shared resources").
type Publisher struct {
	p atomic.Pointer[Pipeline]
}

// NewPublisher returns a Publisher already holding initial (which may be
// an empty pipeline, i.e. pass-through).
func NewPublisher(initial *Pipeline) *Publisher {
	pub := &Publisher{}
	if initial == nil {
		initial = &Pipeline{}
	}
	pub.p.Store(initial)
	return pub
}

// Load returns the currently published pipeline. Safe to call from the
// real-time ingress goroutine with no locking.
func (pub *Publisher) Load() *Pipeline {
	return pub.p.Load()
}

// Store publishes a new pipeline, atomically replacing whatever the
// reader currently sees. Safe to call from any goroutine; the reader
// never observes a torn or partially built Pipeline.
func (pub *Publisher) Store(p *Pipeline) {
	if p == nil {
		p = &Pipeline{}
	}
	pub.p.Store(p)
}
