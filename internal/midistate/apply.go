package midistate

import "github.com/hakolsound/midinet/internal/wire"

// Channel-mode controller numbers (spec.md §4.2).
const (
	ccDamperPedal     = 64
	ccNRPNLSB         = 98
	ccNRPNMSB         = 99
	ccRPNLSB          = 100
	ccRPNMSB          = 101
	ccDataEntryMSB    = 6
	ccDataEntryLSB    = 38
	ccDataIncrement   = 96
	ccDataDecrement   = 97
	ccAllSoundOff     = 120
	ccResetAllControl = 121
	ccAllNotesOff     = 123
)

// Apply is the pure state-transition function required by spec.md §4.2
// and invariant 1 of §8: identical message streams must produce identical
// final state regardless of timing, on host and client alike. It returns
// a new State value; the caller decides whether to keep the old one.
func Apply(s State, msg wire.MidiMessage) State {
	if msg.Channel < 1 || msg.Channel > 16 {
		return s // system messages (Clock, SysEx, ...) don't touch channel state
	}
	ch := s.Channels[msg.Channel-1]
	ch = applyToChannel(ch, msg)
	s.Channels[msg.Channel-1] = ch
	return s
}

func applyToChannel(ch ChannelState, msg wire.MidiMessage) ChannelState {
	switch msg.Kind {
	case wire.NoteOn:
		note, velocity := msg.Bytes[0], msg.Bytes[1]
		if velocity == 0 {
			// Running-status convention: NoteOn velocity 0 is a NoteOff.
			return noteOff(ch, note)
		}
		ch.NoteVelocities[note] = velocity
		ch.SustainedOff[note] = false
		return ch

	case wire.NoteOff:
		return noteOff(ch, msg.Bytes[0])

	case wire.PolyPressure:
		ch.PolyPressure[msg.Bytes[0]] = msg.Bytes[1]
		return ch

	case wire.ControlChange:
		return applyCC(ch, msg.Bytes[0], msg.Bytes[1])

	case wire.ProgramChange:
		ch.Program = msg.Bytes[0]
		return ch

	case wire.ChannelPressure:
		ch.ChannelPressure = msg.Bytes[0]
		return ch

	case wire.PitchBend:
		lsb, msb := msg.Bytes[0], msg.Bytes[1]
		ch.PitchBend = int16(uint16(msb)<<7|uint16(lsb)) - 8192
		return ch

	default:
		return ch
	}
}

func noteOff(ch ChannelState, note byte) ChannelState {
	if ch.PedalHeld {
		ch.SustainedOff[note] = true
		return ch
	}
	ch.NoteVelocities[note] = 0
	ch.SustainedOff[note] = false
	return ch
}

func allNotesOff(ch ChannelState) ChannelState {
	if ch.PedalHeld {
		for n := range ch.NoteVelocities {
			if ch.NoteVelocities[n] > 0 {
				ch.SustainedOff[n] = true
			}
		}
		return ch
	}
	ch.NoteVelocities = [128]uint8{}
	ch.SustainedOff = [128]bool{}
	return ch
}

func allSoundOff(ch ChannelState) ChannelState {
	ch.NoteVelocities = [128]uint8{}
	ch.SustainedOff = [128]bool{}
	ch.PedalHeld = false
	return ch
}

func releasePedal(ch ChannelState) ChannelState {
	for n := range ch.SustainedOff {
		if ch.SustainedOff[n] {
			ch.NoteVelocities[n] = 0
			ch.SustainedOff[n] = false
		}
	}
	ch.PedalHeld = false
	return ch
}

func resetAllControllers(ch ChannelState) ChannelState {
	ch.PitchBend = 0
	ch.ChannelPressure = 0
	ch.PolyPressure = [128]uint8{}
	ch.RPN = newParamSelector()
	ch.NRPN = newParamSelector()
	ch.activeSelector = selectorNone
	if ch.PedalHeld {
		ch = releasePedal(ch)
	}
	return ch
}

func applyCC(ch ChannelState, cc, value uint8) ChannelState {
	ch.CCValues[cc] = value

	switch cc {
	case ccDamperPedal:
		held := value >= 64
		if ch.PedalHeld && !held {
			return releasePedal(ch)
		}
		ch.PedalHeld = held
		return ch

	case ccAllSoundOff:
		return allSoundOff(ch)

	case ccResetAllControl:
		return resetAllControllers(ch)

	case ccAllNotesOff:
		return allNotesOff(ch)

	case ccRPNMSB:
		ch.RPN.paramMSB = value
		ch.RPN.Param = combineParam(ch.RPN.paramMSB, ch.RPN.paramLSB)
		ch.activeSelector = selectorRPN
		return ch
	case ccRPNLSB:
		ch.RPN.paramLSB = value
		ch.RPN.Param = combineParam(ch.RPN.paramMSB, ch.RPN.paramLSB)
		ch.activeSelector = selectorRPN
		return ch
	case ccNRPNMSB:
		ch.NRPN.paramMSB = value
		ch.NRPN.Param = combineParam(ch.NRPN.paramMSB, ch.NRPN.paramLSB)
		ch.activeSelector = selectorNRPN
		return ch
	case ccNRPNLSB:
		ch.NRPN.paramLSB = value
		ch.NRPN.Param = combineParam(ch.NRPN.paramMSB, ch.NRPN.paramLSB)
		ch.activeSelector = selectorNRPN
		return ch

	case ccDataEntryMSB:
		return applyDataEntry(ch, func(v uint16) uint16 { return (uint16(value) << 7) | (v & 0x7F) })
	case ccDataEntryLSB:
		return applyDataEntry(ch, func(v uint16) uint16 { return (v &^ 0x7F) | uint16(value) })
	case ccDataIncrement:
		return applyDataEntry(ch, func(v uint16) uint16 { return min(v+1, 0x3FFF) })
	case ccDataDecrement:
		return applyDataEntry(ch, func(v uint16) uint16 {
			if v == 0 {
				return 0
			}
			return v - 1
		})
	}
	return ch
}

func combineParam(msb, lsb uint8) uint16 {
	return uint16(msb)<<7 | uint16(lsb)
}

// applyDataEntry routes a data-entry CC (6/38/96/97) to whichever of
// RPN/NRPN was most recently addressed by its MSB/LSB selector pair.
func applyDataEntry(ch ChannelState, update func(uint16) uint16) ChannelState {
	switch ch.activeSelector {
	case selectorRPN:
		if ch.RPN.Param == rpnNRPNNull {
			return ch
		}
		ch.RPN.Value = update(ch.RPN.Value)
	case selectorNRPN:
		if ch.NRPN.Param == rpnNRPNNull {
			return ch
		}
		ch.NRPN.Value = update(ch.NRPN.Value)
	}
	return ch
}

// ApplyAll folds a full message stream through Apply, in order. Used by
// tests exercising invariant 1 of spec.md §8 (host apply vs. client
// replay-of-same-stream equality).
func ApplyAll(s State, msgs []wire.MidiMessage) State {
	for _, m := range msgs {
		s = Apply(s, m)
	}
	return s
}
