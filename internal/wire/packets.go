package wire

// MidiDataPacket carries one or more MidiMessages for a single stream.
// Seq is monotonically increasing per (host, stream); it wraps at
// u32::MAX back to 0, which receivers must treat as a cursor
// reinitialisation rather than message loss.
type MidiDataPacket struct {
	StreamID StreamID
	Seq      uint32
	HostID   uint16
	Epoch    uint32
	Flags    Flags
	Messages []MidiMessage

	// SysEx fragmentation fields. Zero value (SysExID == 0, TotalFrags == 0)
	// means this packet carries whole messages, not a fragment.
	SysExID    uint16
	FragIndex  uint16
	TotalFrags uint16
	FragFinal  bool
	FragData   []byte
}

// IsSysExFragment reports whether this packet carries one SysEx fragment
// rather than a list of whole messages.
func (p *MidiDataPacket) IsSysExFragment() bool {
	return p.TotalFrags > 0
}

// HeartbeatPacket is the keep-alive packet whose absence drives failover
// detection on the client. Emitted every HEARTBEAT_INTERVAL_MS on both
// multicast groups.
type HeartbeatPacket struct {
	StreamID       StreamID
	HostID         uint16
	Epoch          uint32
	Seq            uint32
	TxTimeNS       uint64
	StandbyHealthy bool
	InputActive    uint8
	HealthScore    uint8
}

// IdentityPacket describes the physical MIDI device a host is cloning.
// Broadcast on the control group every 5s and once on each newly observed
// client.
type IdentityPacket struct {
	HostID             uint16
	DeviceManufacturer string
	DeviceName         string
	DeviceModel        string
	VendorID           uint16
	ProductID          uint16
	UniqueID           string
	PortCountIn        uint8
	PortCountOut       uint8
	Capabilities       uint32
}

// FocusOp enumerates the focus/feedback arbitration operations.
type FocusOp uint8

const (
	FocusClaim FocusOp = iota + 1
	FocusRelease
	FocusGrant
	FocusDeny
	FocusHeartbeat
)

// FocusPacket carries one focus-arbitration operation on the control group.
// Preempt only applies to Claim: when false, a Claim against an active,
// unexpired holder is denied rather than overriding it.
type FocusPacket struct {
	Op           FocusOp
	ClientID     uint64
	LeaseUntilNS uint64
	Preempt      bool
	Reason       string
}

// FeedbackPacket carries the current focus holder's local MIDI input
// back toward the physical device, tagged with the sender's client_id so
// the host can gate it against the live grant before relaying (spec.md
// §4.11). Sent on the same control group as FocusPacket.
type FeedbackPacket struct {
	ClientID uint64
	Messages []MidiMessage
}
