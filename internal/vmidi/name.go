package vmidi

import (
	"fmt"

	"github.com/hakolsound/midinet/internal/wire"
)

// virtualPortName derives the name a virtual port is opened under from a
// cloned device's identity, truncated to the conventional ~31-byte limit
// CoreMIDI/ALSA/teVirtualMIDI client names are kept under.
func virtualPortName(identity wire.IdentityPacket) string {
	name := identity.DeviceName
	if name == "" {
		name = fmt.Sprintf("MIDInet %d", identity.HostID)
	}
	const maxLen = 31
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}
