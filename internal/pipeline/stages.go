package pipeline

import "github.com/hakolsound/midinet/internal/wire"

// ChannelFilter drops channel-voice messages on channels not set in Mask.
// Bit (channel-1) selects MIDI channel `channel` (1..16); system messages
// (channel 0) always pass.
type ChannelFilter struct {
	Mask uint16
}

func (f ChannelFilter) Apply(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	if !msg.Kind.IsChannelVoice() {
		return msg, true
	}
	if msg.Channel < 1 || msg.Channel > 16 {
		return msg, true
	}
	if f.Mask&(1<<(msg.Channel-1)) == 0 {
		return msg, false
	}
	return msg, true
}

// ChannelRemap rewrites channel-voice message channels through a 17-entry
// table indexed by channel (index 0 unused, indices 1..16 map to the
// destination channel; 0 in an entry means "drop on this channel").
type ChannelRemap struct {
	Map [17]uint8
}

func (r ChannelRemap) Apply(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	if !msg.Kind.IsChannelVoice() || msg.Channel < 1 || msg.Channel > 16 {
		return msg, true
	}
	dst := r.Map[msg.Channel]
	if dst == 0 {
		return msg, false
	}
	msg.Channel = dst
	return msg, true
}

// CcRemapRule maps one (SrcChannel, SrcCC) pair to DstCC. SrcChannel 0
// means "any channel".
type CcRemapRule struct {
	SrcChannel uint8
	SrcCC      uint8
	DstCC      uint8
}

// CcRemap rewrites ControlChange controller numbers per Rules. Only the
// first matching rule applies; non-CC messages pass through untouched.
type CcRemap struct {
	Rules []CcRemapRule
}

func (r CcRemap) Apply(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	if msg.Kind != wire.ControlChange || len(msg.Bytes) < 1 {
		return msg, true
	}
	cc := msg.Bytes[0]
	for _, rule := range r.Rules {
		if rule.SrcCC != cc {
			continue
		}
		if rule.SrcChannel != 0 && rule.SrcChannel != msg.Channel {
			continue
		}
		msg.Bytes[0] = rule.DstCC
		return msg, true
	}
	return msg, true
}

// VelocityCurveKind selects how VelocityCurve remaps NoteOn velocities.
type VelocityCurveKind uint8

const (
	VelocityLinear VelocityCurveKind = iota
	VelocitySoft
	VelocityHard
	VelocityFixed
	VelocityCustom
)

// VelocityCurve remaps NoteOn velocity 1..127 through one of a fixed set
// of curves, or a 128-entry custom lookup table. Velocity 0 (note-off
// convention) is always passed through unchanged.
type VelocityCurve struct {
	Kind  VelocityCurveKind
	Fixed uint8      // used when Kind == VelocityFixed
	LUT   [128]uint8 // used when Kind == VelocityCustom
}

func (v VelocityCurve) Apply(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	if msg.Kind != wire.NoteOn || len(msg.Bytes) < 2 {
		return msg, true
	}
	vel := msg.Bytes[1]
	if vel == 0 {
		return msg, true
	}
	msg.Bytes[1] = v.curve(vel)
	return msg, true
}

func (v VelocityCurve) curve(vel uint8) uint8 {
	switch v.Kind {
	case VelocitySoft:
		// Convex: compresses the bottom of the range, expands the top.
		scaled := (uint32(vel) * uint32(vel)) / 127
		return clampVelocity(scaled)
	case VelocityHard:
		// Concave: expands the bottom of the range, compresses the top.
		scaled := 254*uint32(vel) - uint32(vel)*uint32(vel)
		scaled /= 127
		return clampVelocity(scaled)
	case VelocityFixed:
		return clampVelocity(uint32(v.Fixed))
	case VelocityCustom:
		return v.LUT[vel]
	default: // VelocityLinear
		return vel
	}
}

func clampVelocity(v uint32) uint8 {
	if v == 0 {
		return 1 // never demote a NoteOn into the velocity-0 note-off convention
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// NoteRangeAction selects NoteRange's behavior for an out-of-range note.
type NoteRangeAction uint8

const (
	NoteRangeDrop NoteRangeAction = iota
	NoteRangeClip
	NoteRangeTranspose
)

// NoteRange bounds NoteOn/NoteOff/PolyPressure note numbers to [Low, High].
type NoteRange struct {
	Low, High uint8
	Action    NoteRangeAction
	Transpose int8 // used when Action == NoteRangeTranspose
}

func (n NoteRange) Apply(msg wire.MidiMessage) (wire.MidiMessage, bool) {
	switch msg.Kind {
	case wire.NoteOn, wire.NoteOff, wire.PolyPressure:
	default:
		return msg, true
	}
	if len(msg.Bytes) < 1 {
		return msg, true
	}
	note := msg.Bytes[0]
	if note >= n.Low && note <= n.High {
		return msg, true
	}

	switch n.Action {
	case NoteRangeClip:
		if note < n.Low {
			msg.Bytes[0] = n.Low
		} else {
			msg.Bytes[0] = n.High
		}
		return msg, true
	case NoteRangeTranspose:
		shifted := int16(note) + int16(n.Transpose)
		if shifted < 0 || shifted > 127 {
			return msg, false
		}
		msg.Bytes[0] = uint8(shifted)
		return msg, true
	default: // NoteRangeDrop
		return msg, false
	}
}
