//go:build darwin

package vmidi

import "github.com/hakolsound/midinet/internal/wire"

func openPlatform(identity wire.IdentityPacket) (backend, Variant, error) {
	b, err := openRtmidiVirtual(identity)
	if err != nil {
		return nil, VariantCoreMidi, err
	}
	return b, VariantCoreMidi, nil
}
