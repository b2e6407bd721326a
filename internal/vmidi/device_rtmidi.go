//go:build linux || darwin

package vmidi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/hakolsound/midinet/internal/wire"
)

// rtmidiBackend wraps the virtual in/out port pair rtmididrv opens on
// ALSA (Linux) or CoreMIDI (darwin) behind the narrow backend interface
// Device drives. Both platforms share this file because rtmididrv
// presents the same API on either OS; only the reported Variant differs.
type rtmidiBackend struct {
	driver *rtmididrv.Driver
	in     drivers.In
	out    drivers.Out
}

func openRtmidiVirtual(identity wire.IdentityPacket) (backend, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open rtmidi driver: %w", err)
	}

	name := virtualPortName(identity)
	in, err := drv.OpenVirtualIn(name)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("open virtual input %q: %w", name, err)
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		in.Close()
		drv.Close()
		return nil, fmt.Errorf("open virtual output %q: %w", name, err)
	}

	return &rtmidiBackend{driver: drv, in: in, out: out}, nil
}

func (b *rtmidiBackend) Send(raw []byte) error {
	return b.out.Send(raw)
}

func (b *rtmidiBackend) Listen(onMessage func(raw []byte, timestampMS int32)) (func(), error) {
	return b.in.Listen(onMessage)
}

func (b *rtmidiBackend) Close() error {
	inErr := b.in.Close()
	outErr := b.out.Close()
	b.driver.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}
