package host

import (
	"context"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// runIdentityBeacon re-emits the configured IdentityPacket on the control
// group every IdentityInterval. BeaconNow sends one beacon on demand, but
// nothing in this module calls it, so a newly observed client does not
// trigger an extra beacon: identity goes out only on this cadence.
func (b *Broadcaster) runIdentityBeacon(ctx context.Context) error {
	if err := b.sendIdentity(); err != nil {
		b.logger.Error("identity beacon failed", "err", err)
	}

	ticker := time.NewTicker(b.cfg.IdentityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.sendIdentity(); err != nil {
				b.logger.Error("identity beacon failed", "err", err)
			}
		}
	}
}

// BeaconNow sends one IdentityPacket immediately, independent of the
// periodic ticker. Callers use this on observing a not-previously-seen
// client so it doesn't have to wait up to IdentityInterval for its first
// identity beacon.
func (b *Broadcaster) BeaconNow() error {
	return b.sendIdentity()
}

func (b *Broadcaster) sendIdentity() error {
	ident := b.cfg.Identity
	ident.HostID = b.cfg.HostID

	pkt := &wire.Packet{
		Header:   wire.Header{Version: wire.Version},
		Identity: &ident,
	}
	buf, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = b.sendControl.WriteToUDP(buf, b.cfg.Control)
	return err
}
