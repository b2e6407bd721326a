package host

import (
	"context"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// runHeartbeat emits a HeartbeatPacket on the own stream's heartbeat
// socket every HeartbeatInterval, carrying the sibling host's observed
// health and the input-redundancy controller's active-input selection.
func (b *Broadcaster) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.sendHeartbeatPacket(true); err != nil {
				b.logger.Error("terminating heartbeat send failed", "err", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := b.sendHeartbeatPacket(false); err != nil {
				b.logger.Error("heartbeat send failed", "err", err)
			}
		}
	}
}

func (b *Broadcaster) sendHeartbeatPacket(terminating bool) error {
	inputActive := uint8(0)
	if b.inputActive.Load() {
		inputActive = 1
	}

	flags := wire.Flags(0)
	if terminating {
		flags |= wire.FlagTerminating
	}

	pkt := &wire.Packet{
		Header: wire.Header{Version: wire.Version, Flags: flags},
		Heartbeat: &wire.HeartbeatPacket{
			StreamID:       b.cfg.StreamID,
			HostID:         b.cfg.HostID,
			Epoch:          b.cfg.Epoch,
			Seq:            b.nextHBSeq(),
			TxTimeNS:       uint64(time.Now().UnixNano()),
			StandbyHealthy: b.peerHealthyNow(),
			InputActive:    inputActive,
			HealthScore:    255,
		},
	}
	buf, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = b.sendHeartbeat.WriteToUDP(buf, b.cfg.Own.Heartbeat)
	return err
}

// runPeerHeartbeatListener reads HeartbeatPackets off the sibling
// stream's heartbeat socket, updating peerLastRx so sendHeartbeatPacket
// can report StandbyHealthy accurately. Unparseable packets bump
// peerHBDrops and are logged rather than silently skipped; a malformed
// sibling packet must never take down health observation.
func (b *Broadcaster) runPeerHeartbeatListener(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b.recvPeerHB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := b.recvPeerHB.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue // timeout or transient read error; keep listening
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			b.peerHBDrops.Add(1)
			b.logger.Debug("dropped unparseable peer heartbeat", "err", err)
			continue
		}
		if pkt.Heartbeat == nil {
			continue
		}
		if pkt.Heartbeat.HostID == b.cfg.HostID {
			continue // our own heartbeat looped back on a shared test socket
		}
		b.observePeerHeartbeat()
	}
}
