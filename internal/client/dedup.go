package client

import (
	"hash/fnv"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// dedupHistoryMax bounds the cross-stream dedup table the same way the
// teacher bounds its transmitted-packet history (src/dedupe.go's
// HISTORY_MAX): a fixed-size ring, oldest entry overwritten once full,
// rather than a map that can grow unbounded under packet storm.
const dedupHistoryMax = 256

type dedupEntry struct {
	seen bool
	hash uint64
	at   time.Time
}

// dedupTable suppresses the brief overlap where primary and standby
// streams carry the same payload with independent seq spaces (spec.md
// §4.9): a content hash keyed on (timestamp_ns, msg bytes), checked
// within a sliding window.
type dedupTable struct {
	window time.Duration
	ring   [dedupHistoryMax]dedupEntry
	next   int
}

func newDedupTable(window time.Duration) *dedupTable {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &dedupTable{window: window}
}

// Seen reports whether msg (observed at "now") duplicates one already
// recorded within the window. Only a first arrival is recorded; a repeat
// matches that record, so a third identical arrival within the window of
// the first is also caught.
func (d *dedupTable) Seen(msg wire.MidiMessage, now time.Time) bool {
	h := hashMessage(msg)

	for i := range d.ring {
		e := d.ring[i]
		if !e.seen {
			continue
		}
		if now.Sub(e.at) > d.window {
			continue // stale; treat as not a duplicate even though the slot isn't reclaimed yet
		}
		if e.hash == h {
			return true
		}
	}

	d.ring[d.next] = dedupEntry{seen: true, hash: h, at: now}
	d.next = (d.next + 1) % dedupHistoryMax
	return false
}

func hashMessage(msg wire.MidiMessage) uint64 {
	h := fnv.New64a()
	var tsBuf [8]byte
	for i := range tsBuf {
		tsBuf[i] = byte(msg.TimestampNS >> (8 * i))
	}
	h.Write(tsBuf[:])
	h.Write([]byte{byte(msg.Kind), msg.Channel})
	h.Write(msg.Bytes)
	return h.Sum64()
}
