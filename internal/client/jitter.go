package client

import (
	"sort"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

type pendingPacket struct {
	pkt     *wire.MidiDataPacket
	arrival time.Time
}

// jitterBuffer reorders MidiDataPackets by seq within a depth window
// before releasing them to the caller, per spec.md §4.9. Depth 0 (the
// wired default) disables buffering entirely: Push releases immediately.
// A duplicate (a seq already released) is dropped rather than re-queued.
type jitterBuffer struct {
	depth time.Duration

	pending      map[uint32]pendingPacket
	nextExpected uint32
	haveNext     bool

	started      bool
	firstArrival time.Time
}

func newJitterBuffer(depth time.Duration) *jitterBuffer {
	return &jitterBuffer{depth: depth, pending: make(map[uint32]pendingPacket)}
}

// Push admits pkt, observed at now, and returns any packets now ready for
// release, in ascending seq order.
func (j *jitterBuffer) Push(pkt *wire.MidiDataPacket, now time.Time) []*wire.MidiDataPacket {
	if j.haveNext && seqBefore(pkt.Seq, j.nextExpected) {
		return nil // duplicate or already-passed seq
	}
	if j.depth <= 0 {
		j.markReleased(pkt.Seq + 1)
		return []*wire.MidiDataPacket{pkt}
	}
	if _, dup := j.pending[pkt.Seq]; dup {
		return nil
	}
	if !j.started {
		j.started = true
		j.firstArrival = now
	}
	j.pending[pkt.Seq] = pendingPacket{pkt: pkt, arrival: now}
	return j.drain(now)
}

// Tick forces release of any pending packet that has aged past depth even
// though its predecessor never arrived (a gap becomes a drop, not an
// indefinite stall). The client itself does not call Tick, so with depth
// > 0 a held packet is otherwise released only by a later Push.
func (j *jitterBuffer) Tick(now time.Time) []*wire.MidiDataPacket {
	return j.drain(now)
}

func (j *jitterBuffer) drain(now time.Time) []*wire.MidiDataPacket {
	if len(j.pending) == 0 {
		return nil
	}
	seqs := make([]uint32, 0, len(j.pending))
	for s := range j.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, k int) bool { return seqBefore(seqs[i], seqs[k]) })

	var ready []*wire.MidiDataPacket
	for _, s := range seqs {
		entry := j.pending[s]
		contiguous := j.haveNext && s == j.nextExpected
		// Before any baseline exists, the lowest pending seq becomes the
		// baseline once depth has elapsed since the very first packet was
		// seen — that's the window during which an earlier-numbered
		// packet was allowed to still arrive and overtake it.
		baseline := !j.haveNext && s == seqs[0] && now.Sub(j.firstArrival) >= j.depth
		timedOut := now.Sub(entry.arrival) >= j.depth
		if !contiguous && !baseline && !timedOut {
			break // wait for the gap to fill, or for it to time out
		}
		ready = append(ready, entry.pkt)
		delete(j.pending, s)
		j.markReleased(s + 1)
	}
	return ready
}

func (j *jitterBuffer) markReleased(nextSeq uint32) {
	j.nextExpected = nextSeq
	j.haveNext = true
}

// seqBefore reports whether a precedes b in u32 sequence-number space,
// tolerating a single wraparound (the gap convention wire.MidiDataPacket
// documents: receivers reinitialise their cursor rather than treat a wrap
// as loss). A half-range comparison distinguishes "a is just behind b" from
// "a wrapped past b".
func seqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
