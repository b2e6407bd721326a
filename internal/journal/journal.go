// Package journal implements the bounded reduced-event log and periodic
// state snapshot the host broadcaster uses to reconcile a client after a
// stream failover (spec.md §4.3). It sits above internal/midistate (whose
// State it snapshots) and below internal/host, which owns the one
// StateJournal instance per broadcaster.
package journal

import (
	"sync"
	"time"

	"github.com/hakolsound/midinet/internal/midistate"
	"github.com/hakolsound/midinet/internal/wire"
)

// DefaultCapacity is JOURNAL_MAX from spec.md §4.3.
const DefaultCapacity = 4096

// DefaultSnapshotInterval is SNAPSHOT_INTERVAL_MS from spec.md §4.3.
const DefaultSnapshotInterval = 500 * time.Millisecond

// entry is one reduced event carrying the sequence number it was recorded
// under, so ReplaySince can slice the backlog by seq rather than position.
type entry struct {
	seq uint32
	msg wire.MidiMessage
}

// Snapshot is a point-in-time capture of the channel state plus the
// (epoch, seq) position it was taken at.
type Snapshot struct {
	Epoch uint32
	Seq   uint32
	State midistate.State
}

// StateJournal is the bounded reduced-event ring plus latest snapshot. It
// is single-owner: the host broadcaster is the only writer, matching
// spec.md §4's ownership rule. Record/Snapshot/ReplaySince are still
// mutex-guarded so the status/observability reader and the journal-query
// responder (a different goroutine than the ingest path) can read safely.
type StateJournal struct {
	mu sync.Mutex

	capacity int
	epoch    uint32
	nextSeq  uint32

	ring  []entry
	start int
	count int

	snapshotInterval time.Duration
	lastSnapshotAt   time.Time
	snapshot         Snapshot
	haveSnapshot     bool
}

// New returns a journal for the given epoch (bumped by the broadcaster on
// every restart, per spec.md §4.9) with capacity JOURNAL_MAX entries.
func New(epoch uint32, capacity int) *StateJournal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &StateJournal{
		capacity: capacity,
		epoch:    epoch,
		// Sequence numbers start at 1 so that seq 0 unambiguously means
		// "no events applied yet" for a fresh client's ReplaySince call.
		nextSeq:          1,
		ring:             make([]entry, capacity),
		snapshotInterval: DefaultSnapshotInterval,
	}
}

// Epoch reports the journal's current epoch.
func (j *StateJournal) Epoch() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.epoch
}

// Record appends a reduced batch of messages to the journal: within this
// single call, a later ControlChange on the same (channel, cc) supersedes
// an earlier one in the same batch (spec.md §4.3's "current frame"
// reduction); NoteOn/NoteOff and other kinds are never reduced. state is
// the authoritative ChannelState *after* applying this batch, used only if
// recording this batch would overflow the ring and force a snapshot.
func (j *StateJournal) Record(state midistate.State, batch []wire.MidiMessage) {
	reduced := reduceBatch(batch)
	if len(reduced) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for i, msg := range reduced {
		if j.count == j.capacity {
			// Overflow: the event about to be evicted might be the only
			// record of state no snapshot yet covers. Promote a snapshot
			// of the post-batch state now so reconciliation never loses
			// ground (spec.md §8 "journal overflow" edge case), then
			// evict as usual.
			j.takeSnapshotLocked(state)
			// state already holds the rest of this batch, so the snapshot
			// covers the seqs those events are about to be assigned too.
			j.snapshot.Seq = j.nextSeq - 1 + uint32(len(reduced)-i)
		}
		j.pushLocked(msg)
	}

	if time.Since(j.lastSnapshotAt) >= j.snapshotInterval {
		j.takeSnapshotLocked(state)
	}
}

func (j *StateJournal) pushLocked(msg wire.MidiMessage) {
	seq := j.nextSeq
	j.nextSeq++

	idx := (j.start + j.count) % j.capacity
	if j.count == j.capacity {
		// Ring is full: the write at idx overwrites the current oldest
		// slot, so advance start to drop it.
		j.start = (j.start + 1) % j.capacity
	} else {
		j.count++
	}
	j.ring[idx] = entry{seq: seq, msg: msg}
}

// Snapshot forces an immediate snapshot of state, independent of the
// periodic cadence. Exposed so the broadcaster can snapshot at clean
// boundaries (e.g. on a designated-primary switch) as well as on the
// regular interval.
func (j *StateJournal) Snapshot(state midistate.State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.takeSnapshotLocked(state)
}

func (j *StateJournal) takeSnapshotLocked(state midistate.State) {
	// Seq records the highest event sequence already folded into state,
	// using the same units as ReplaySince's "last-applied seq" argument.
	j.snapshot = Snapshot{Epoch: j.epoch, Seq: j.nextSeq - 1, State: state}
	j.haveSnapshot = true
	j.lastSnapshotAt = time.Now()
}

// ReplaySince returns the minimum reconciliation payload for a receiver
// whose last-acknowledged position is (epoch, seq): spec.md §4.3. A pure
// query — calling it twice with the same arguments returns an equal
// result (spec.md §8 invariant), since it never mutates the journal.
func (j *StateJournal) ReplaySince(epoch, seq uint32) (*Snapshot, []wire.MidiMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if epoch != j.epoch {
		// Different epoch: the receiver's seq numbering is meaningless
		// against this journal instance. Always return a full snapshot.
		return j.snapshotCopyLocked(), nil
	}

	oldestSeq, haveRing := j.oldestSeqLocked()
	if !haveRing {
		// Nothing in the ring: either nothing has happened yet, or
		// everything is already folded into the snapshot.
		if j.haveSnapshot && seq < j.snapshot.Seq {
			return j.snapshotCopyLocked(), nil
		}
		return nil, nil
	}

	if seq+1 < oldestSeq {
		// Gap only a snapshot can fill.
		return j.snapshotCopyLocked(), j.eventsSinceLocked(maxUint32(seq, j.snapshot.Seq))
	}
	return nil, j.eventsSinceLocked(seq)
}

func (j *StateJournal) oldestSeqLocked() (uint32, bool) {
	if j.count == 0 {
		return 0, false
	}
	return j.ring[j.start].seq, true
}

// eventsSinceLocked returns events with seq strictly greater than since,
// in ring order.
func (j *StateJournal) eventsSinceLocked(since uint32) []wire.MidiMessage {
	out := make([]wire.MidiMessage, 0, j.count)
	for i := 0; i < j.count; i++ {
		e := j.ring[(j.start+i)%j.capacity]
		if e.seq > since {
			out = append(out, e.msg)
		}
	}
	return out
}

func (j *StateJournal) snapshotCopyLocked() *Snapshot {
	if !j.haveSnapshot {
		return nil
	}
	cp := j.snapshot
	return &cp
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

type reduceKey struct {
	channel uint8
	cc      uint8
}

// reduceBatch collapses repeated ControlChange events on the same
// (channel, cc) within one batch down to the last one, preserving the
// relative order of the surviving (possibly replaced) entries.
func reduceBatch(batch []wire.MidiMessage) []wire.MidiMessage {
	positions := make(map[reduceKey]int, len(batch))
	out := make([]wire.MidiMessage, 0, len(batch))

	for _, msg := range batch {
		if msg.Kind != wire.ControlChange || len(msg.Bytes) == 0 {
			out = append(out, msg)
			continue
		}
		key := reduceKey{channel: msg.Channel, cc: msg.Bytes[0]}
		if pos, ok := positions[key]; ok {
			out[pos] = msg
			continue
		}
		positions[key] = len(out)
		out = append(out, msg)
	}
	return out
}
