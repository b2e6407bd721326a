package wire

// MessageKind enumerates the canonical, channel-normalized MIDI event
// kinds carried inside a MidiDataPacket.
type MessageKind uint8

const (
	NoteOff MessageKind = iota + 1
	NoteOn
	PolyPressure
	ControlChange
	ProgramChange
	ChannelPressure
	PitchBend
	SysEx
	Clock
	Start
	Continue
	Stop
	ActiveSensing
	SystemReset
)

// MidiMessage is one canonical MIDI event. Channel is 1..16 for
// channel-voice kinds and 0 for system messages (Clock, SysEx, ...).
// Bytes holds up to 3 inline data bytes for channel-voice messages, or the
// full payload for SysEx. Timestamp is set at ingress on the host's
// monotonic clock and preserved end-to-end.
type MidiMessage struct {
	Channel     uint8
	Kind        MessageKind
	Bytes       []byte
	TimestampNS uint64
}

// IsChannelVoice reports whether this message kind carries a channel
// number (1..16) as opposed to being a system-wide message.
func (k MessageKind) IsChannelVoice() bool {
	switch k {
	case NoteOff, NoteOn, PolyPressure, ControlChange, ProgramChange, ChannelPressure, PitchBend:
		return true
	default:
		return false
	}
}
