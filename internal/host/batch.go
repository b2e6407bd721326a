package host

import (
	"context"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// batchOverheadBudget is subtracted from wire.MTULimit to leave headroom
// for the MidiDataPacket header, per-message framing, and the CRC
// trailer; batch accumulation flushes before actually hitting the limit
// so Encode never has to reject a batch as oversized.
const batchOverheadBudget = 64

// idlePoll is how long runBatcher sleeps between empty ring polls. The
// ring is lock-free and non-blocking by design (internal/ringbuf), so the
// consumer side is expected to poll rather than wait on a channel; this
// keeps the poll cheap without spinning a full CPU core.
const idlePoll = 50 * time.Microsecond

// runBatcher drains b.ring, packing messages into MidiDataPackets per
// spec.md §4.7: flush on the batch window elapsing, on reaching the MTU
// budget, or immediately on a Clock/NoteOff/All-Notes-Off message, since
// those carry timing or panic-stop semantics a receiver shouldn't see
// delayed by up to a full batch window.
func (b *Broadcaster) runBatcher(ctx context.Context) error {
	var batch []wire.MidiMessage
	var batchStart time.Time
	approxSize := headerApproxSize

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		msgs := batch
		batch = nil
		approxSize = headerApproxSize
		return b.sendDataBatch(msgs)
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		default:
		}

		msg, ok := b.ring.Pop()
		if !ok {
			if len(batch) > 0 && time.Since(batchStart) >= b.cfg.BatchWindow {
				if err := flush(); err != nil {
					b.logger.Error("flush failed", "err", err)
				}
			}
			time.Sleep(idlePoll)
			continue
		}

		if msg.Kind == wire.SysEx && wire.NeedsSplit(len(msg.Bytes)) {
			// An oversized SysEx can't share a MidiDataPacket with other
			// messages (spec.md §4.1's "caller must split"); flush
			// whatever batch is pending first so ordering is preserved.
			if err := flush(); err != nil {
				b.logger.Error("flush failed", "err", err)
			}
			if err := b.sendSplitSysEx(msg); err != nil {
				b.logger.Error("sysex split send failed", "err", err)
			}
			continue
		}

		if len(batch) == 0 {
			batchStart = time.Now()
		}
		batch = append(batch, msg)
		approxSize += messageApproxSize(msg)

		if isFlushTrigger(msg) || approxSize >= wire.MTULimit-batchOverheadBudget || time.Since(batchStart) >= b.cfg.BatchWindow {
			if err := flush(); err != nil {
				b.logger.Error("flush failed", "err", err)
			}
		}
	}
}

// headerApproxSize approximates the fixed MidiDataPacket header cost so
// approxSize tracks encodeMidiData's real output closely enough to flush
// before Encode would ever reject the batch as oversized.
const headerApproxSize = 24

func messageApproxSize(msg wire.MidiMessage) int {
	// kind + channel + timestamp + length prefix + payload bytes.
	return 1 + 1 + 8 + 2 + len(msg.Bytes)
}

// isFlushTrigger reports whether msg must close out the current batch
// immediately rather than waiting for the window or size threshold.
func isFlushTrigger(msg wire.MidiMessage) bool {
	switch msg.Kind {
	case wire.Clock, wire.NoteOff:
		return true
	case wire.ControlChange:
		return len(msg.Bytes) >= 2 && msg.Bytes[0] == 123 // All Notes Off
	default:
		return false
	}
}

func (b *Broadcaster) sendDataBatch(msgs []wire.MidiMessage) error {
	b.recordJournal(msgs)

	pkt := &wire.Packet{
		Header: wire.Header{Version: wire.Version},
		MidiData: &wire.MidiDataPacket{
			StreamID: b.cfg.StreamID,
			Seq:      b.nextDataSeq(),
			HostID:   b.cfg.HostID,
			Epoch:    b.cfg.Epoch,
			Messages: msgs,
		},
	}
	buf, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = b.sendData.WriteToUDP(buf, b.cfg.Own.Data)
	return err
}

// sendSplitSysEx fragments an oversized SysEx message with wire.SplitSysEx
// and sends each fragment as its own MidiDataPacket, assigning each
// fragment the next Seq from the data stream's own counter so the
// receiver's jitter buffer orders it alongside whole-message packets.
// The whole SysEx is recorded in the journal as a single event, not as
// its individual fragments, so reconciliation replays it intact.
func (b *Broadcaster) sendSplitSysEx(msg wire.MidiMessage) error {
	b.recordJournal([]wire.MidiMessage{msg})

	fragments := wire.SplitSysEx(b.cfg.StreamID, b.cfg.HostID, b.cfg.Epoch, b.nextSysExID(), msg.Bytes)
	for _, frag := range fragments {
		frag.Seq = b.nextDataSeq()
		pkt := &wire.Packet{Header: wire.Header{Version: wire.Version}, MidiData: frag}
		buf, err := wire.Encode(pkt)
		if err != nil {
			return err
		}
		if _, err := b.sendData.WriteToUDP(buf, b.cfg.Own.Data); err != nil {
			return err
		}
	}
	return nil
}
