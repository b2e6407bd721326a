package host

import (
	"context"
	"net"
	"time"

	"github.com/hakolsound/midinet/internal/journal"
	"github.com/hakolsound/midinet/internal/wire"
)

// journalReplyOverheadBudget approximates every JournalReplyPacket field
// other than Events: epoch, part index/total, final/has-snapshot flags,
// and the events count prefix. Snapshot bytes (carried only on part 0)
// are added on top per-reply, not per-part.
const journalReplyOverheadBudget = 16

// runJournalResponder answers JournalQueryPackets on the control group
// with one or more JournalReplyPackets built from the journal's current
// backlog (spec.md §4.3). It is the transport half of reconciliation;
// internal/client/reconcile.go is the query side.
func (b *Broadcaster) runJournalResponder(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b.recvControl.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, raddr, err := b.recvControl.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue // timeout or transient read error; keep listening
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			b.logger.Debug("dropped unparseable control packet", "err", err)
			continue
		}
		if pkt.JournalQuery == nil {
			continue // identity/focus traffic on the same group; not ours
		}
		if err := b.answerJournalQuery(raddr, pkt.JournalQuery); err != nil {
			b.logger.Error("journal query reply failed", "err", err)
		}
	}
}

// answerJournalQuery replays the journal's backlog since (q.FromEpoch,
// q.FromSeq) back to raddr as a unicast reply, addressed to the source
// port the query arrived from rather than the multicast group — the
// querying client's own control socket is bound there, so the reply
// lands on the same socket it used to send the query.
func (b *Broadcaster) answerJournalQuery(raddr *net.UDPAddr, q *wire.JournalQueryPacket) error {
	snap, events := b.journal.ReplaySince(q.FromEpoch, q.FromSeq)
	parts := buildJournalReplyParts(b.cfg.Epoch, snap, events)
	for _, p := range parts {
		pkt := &wire.Packet{Header: wire.Header{Version: wire.Version}, JournalReply: p}
		buf, err := wire.Encode(pkt)
		if err != nil {
			return err
		}
		if _, err := b.sendControl.WriteToUDP(buf, raddr); err != nil {
			return err
		}
	}
	return nil
}

// buildJournalReplyParts chunks a replay result into MTU-bounded
// JournalReplyPackets. It always returns at least one part (even an
// empty one) so a reconciling client gets a fast, explicit "nothing new"
// reply instead of exhausting its reconcile timeout. The snapshot (when
// present) rides only on part 0; subsequent parts carry events only.
func buildJournalReplyParts(epoch uint32, snap *journal.Snapshot, events []wire.MidiMessage) []*wire.JournalReplyPacket {
	var snapshotBytes []byte
	if snap != nil {
		snapshotBytes = journal.EncodeSnapshot(snap.State)
	}

	var parts []*wire.JournalReplyPacket
	var current []wire.MidiMessage
	size := journalReplyOverheadBudget + len(snapshotBytes)

	flush := func() {
		parts = append(parts, &wire.JournalReplyPacket{Epoch: epoch, Events: current})
		current = nil
		size = journalReplyOverheadBudget
	}

	for _, msg := range events {
		msgSize := messageApproxSize(msg)
		if len(current) > 0 && size+msgSize > wire.MTULimit-batchOverheadBudget {
			flush()
		}
		current = append(current, msg)
		size += msgSize
	}
	flush()

	parts[0].HasSnapshot = snap != nil
	parts[0].SnapshotBytes = snapshotBytes
	for i, p := range parts {
		p.PartIndex = uint16(i)
		p.TotalParts = uint16(len(parts))
		p.Final = i == len(parts)-1
	}
	return parts
}
