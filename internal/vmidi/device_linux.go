//go:build linux

package vmidi

import "github.com/hakolsound/midinet/internal/wire"

func openPlatform(identity wire.IdentityPacket) (backend, Variant, error) {
	b, err := openRtmidiVirtual(identity)
	if err != nil {
		return nil, VariantAlsaSequencer, err
	}
	return b, VariantAlsaSequencer, nil
}
