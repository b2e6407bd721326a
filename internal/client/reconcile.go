package client

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/hakolsound/midinet/internal/journal"
	"github.com/hakolsound/midinet/internal/wire"
)

// reconcileTimeout bounds how long the monitor waits for a full
// JournalReply session before giving up and resuming live forwarding
// with whatever state the virtual device already has.
const reconcileTimeout = 500 * time.Millisecond

// reconcilePollInterval is how often the reply collector checks its
// socket while assembling a multi-part reply.
const reconcilePollInterval = 20 * time.Millisecond

// reconcile asks the host's state journal to catch the client up after a
// stream switch (spec.md §4.3/§4.9): it sends a JournalQueryPacket on the
// control group, collects the JournalReplyPacket parts of one reply (all
// sharing one epoch), and applies the result to sink — first the snapshot (if any),
// replayed through journal.Synthesize, then the ordered event backlog.
//
// A query/reply round trip only makes sense when host and client are
// separate processes; SPEC_FULL.md's transport completion for spec.md's
// journal query/reply operation is exactly this control-group exchange.
func (m *Monitor) reconcile(ctx context.Context, fromEpoch, fromSeq uint32) error {
	query := &wire.Packet{JournalQuery: &wire.JournalQueryPacket{FromEpoch: fromEpoch, FromSeq: fromSeq}}
	buf, err := wire.Encode(query)
	if err != nil {
		return fmt.Errorf("client: encode journal query: %w", err)
	}
	if _, err := m.controlConn.WriteToUDP(buf, m.cfg.Control); err != nil {
		return fmt.Errorf("client: send journal query: %w", err)
	}

	parts, err := m.collectReplyParts(ctx)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return nil // host has nothing newer; already caught up
	}

	sort.Slice(parts, func(i, k int) bool { return parts[i].PartIndex < parts[k].PartIndex })

	var events []wire.MidiMessage
	for _, p := range parts {
		if p.HasSnapshot {
			state, err := journal.DecodeSnapshot(p.SnapshotBytes)
			if err != nil {
				return fmt.Errorf("client: decode journal snapshot: %w", err)
			}
			for _, msg := range journal.Synthesize(state) {
				if err := m.sink.Write(msg); err != nil {
					return err
				}
			}
		}
		events = append(events, p.Events...)
	}
	for _, msg := range events {
		if err := m.sink.Write(msg); err != nil {
			return err
		}
	}
	return nil
}

// collectReplyParts reads JournalReplyPacket parts off the control socket
// until the part marked Final arrives or reconcileTimeout elapses. The
// first part fixes the epoch; parts carrying another epoch (a second host
// answering the same query) are skipped. The epoch may differ from the
// query's: a host on another epoch answers with a full snapshot under its
// own epoch.
func (m *Monitor) collectReplyParts(ctx context.Context) ([]*wire.JournalReplyPacket, error) {
	deadline := time.Now().Add(reconcileTimeout)
	var parts []*wire.JournalReplyPacket
	buf := make([]byte, wire.MTULimit)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.controlConn.SetReadDeadline(time.Now().Add(reconcilePollInterval))
		n, _, err := m.controlConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, err
		}
		pkt, err := wire.Decode(buf[:n])
		if err != nil || pkt.JournalReply == nil {
			continue
		}
		reply := pkt.JournalReply
		if len(parts) > 0 && reply.Epoch != parts[0].Epoch {
			continue // part of another host's reply to the same query
		}
		parts = append(parts, reply)
		if reply.Final {
			return parts, nil
		}
	}
	return parts, nil // partial or empty: caller resumes live forwarding regardless
}
