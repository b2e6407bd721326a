package vmidi

import "github.com/hakolsound/midinet/internal/wire"

// nullBackend is the always-available in-memory variant used by tests and
// by hosts/clients running headless, per the polymorphic device
// capability's documented Null fallback.
type nullBackend struct {
	onMessage func(raw []byte, timestampMS int32)
}

func openNullBackend(identity wire.IdentityPacket) (backend, Variant, error) {
	return &nullBackend{}, VariantNull, nil
}

func (n *nullBackend) Send(raw []byte) error { return nil }

func (n *nullBackend) Listen(onMessage func(raw []byte, timestampMS int32)) (func(), error) {
	n.onMessage = onMessage
	return func() { n.onMessage = nil }, nil
}

func (n *nullBackend) Close() error { return nil }

// Inject feeds raw bytes into a Null-backed Device as if they'd arrived on
// its input port — the hook tests use to exercise Read() without real
// hardware.
func (d *Device) Inject(raw []byte, timestampMS int32) {
	d.onRaw(raw, timestampMS)
}
