//go:build windows

package vmidi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers/teVirtualMididrv"

	"github.com/hakolsound/midinet/internal/wire"
)

// teVirtualBackend wraps the single bidirectional virtual port
// teVirtualMididrv opens on top of Tobias Erichsen's teVirtualMIDI driver.
type teVirtualBackend struct {
	port *teVirtualMididrv.Port
}

func openPlatform(identity wire.IdentityPacket) (backend, Variant, error) {
	name := virtualPortName(identity)
	port, err := teVirtualMididrv.New(name)
	if err != nil {
		return nil, VariantTeVirtualMidi, fmt.Errorf("open teVirtualMIDI port %q: %w", name, err)
	}
	return &teVirtualBackend{port: port}, VariantTeVirtualMidi, nil
}

func (b *teVirtualBackend) Send(raw []byte) error {
	return b.port.Send(raw)
}

func (b *teVirtualBackend) Listen(onMessage func(raw []byte, timestampMS int32)) (func(), error) {
	return b.port.Listen(onMessage)
}

func (b *teVirtualBackend) Close() error {
	return b.port.Close()
}
