//go:build !linux && !darwin && !windows

package vmidi

import "github.com/hakolsound/midinet/internal/wire"

// openPlatform has no native backend on this GOOS; Open falls back to the
// Null variant rather than failing outright, matching the "headless host"
// use case the Null variant already exists for.
func openPlatform(identity wire.IdentityPacket) (backend, Variant, error) {
	b, variant, err := openNullBackend(identity)
	if err != nil {
		return nil, variant, errNoBackendCompiled
	}
	return b, variant, nil
}
