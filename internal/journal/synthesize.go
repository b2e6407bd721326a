package journal

import (
	"github.com/hakolsound/midinet/internal/midistate"
	"github.com/hakolsound/midinet/internal/wire"
)

// Synthesize generates the minimal ordered sequence of MidiMessages that,
// applied in order to a freshly reset virtual device, reproduce s. The
// client's failover monitor calls this on the snapshot half of a
// replay_since reply (spec.md §4.9 step 3) before applying the event
// backlog that follows it.
//
// activeSelector (which of RPN/NRPN a bare data-entry CC currently
// targets) is not reproducible this way: a snapshot always re-addresses
// RPN then NRPN explicitly via their MSB/LSB pairs, so the synthesized
// stream leaves the rebuilt channel with NRPN selected whenever both were
// non-null in s, regardless of which one s.Channels[c] had last selected.
func Synthesize(s midistate.State) []wire.MidiMessage {
	var out []wire.MidiMessage
	for i, ch := range s.Channels {
		channel := uint8(i + 1)
		out = append(out, synthesizeChannel(channel, ch)...)
	}
	return out
}

func synthesizeChannel(channel uint8, ch midistate.ChannelState) []wire.MidiMessage {
	var msgs []wire.MidiMessage

	if ch.Program != 0 {
		msgs = append(msgs, msg(channel, wire.ProgramChange, ch.Program))
	}
	if ch.ChannelPressure != 0 {
		msgs = append(msgs, msg(channel, wire.ChannelPressure, ch.ChannelPressure))
	}
	if ch.PitchBend != 0 {
		raw := uint16(int32(ch.PitchBend) + 8192)
		lsb := uint8(raw & 0x7F)
		msb := uint8((raw >> 7) & 0x7F)
		msgs = append(msgs, wire.MidiMessage{Channel: channel, Kind: wire.PitchBend, Bytes: []byte{lsb, msb}})
	}

	for cc, v := range ch.CCValues {
		if v == 0 || cc == 64 {
			continue // pedal (64) is re-derived from PedalHeld below
		}
		msgs = append(msgs, cc2(channel, uint8(cc), v))
	}
	if ch.PedalHeld {
		msgs = append(msgs, cc2(channel, 64, 127))
	}

	msgs = append(msgs, synthesizeSelector(channel, 101, 100, ch.RPN)...)
	msgs = append(msgs, synthesizeSelector(channel, 99, 98, ch.NRPN)...)

	for note, vel := range ch.NoteVelocities {
		if vel == 0 {
			continue
		}
		msgs = append(msgs, wire.MidiMessage{Channel: channel, Kind: wire.NoteOn, Bytes: []byte{uint8(note), vel}})
	}
	for note, pp := range ch.PolyPressure {
		if pp == 0 {
			continue
		}
		msgs = append(msgs, wire.MidiMessage{Channel: channel, Kind: wire.PolyPressure, Bytes: []byte{uint8(note), pp}})
	}

	return msgs
}

// rpnNRPNNull mirrors midistate's private sentinel; a snapshot with no
// parameter selected carries this value and needs no CC pair emitted.
const rpnNRPNNull uint16 = 0x3FFF

func synthesizeSelector(channel, msbCC, lsbCC uint8, sel midistate.ParamSelector) []wire.MidiMessage {
	if sel.Param == rpnNRPNNull {
		return nil
	}
	msb := uint8((sel.Param >> 7) & 0x7F)
	lsb := uint8(sel.Param & 0x7F)
	valMSB := uint8((sel.Value >> 7) & 0x7F)
	valLSB := uint8(sel.Value & 0x7F)
	return []wire.MidiMessage{
		cc2(channel, msbCC, msb),
		cc2(channel, lsbCC, lsb),
		cc2(channel, 6, valMSB),
		cc2(channel, 38, valLSB),
	}
}

func cc2(channel, cc, value uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: channel, Kind: wire.ControlChange, Bytes: []byte{cc, value}}
}

func msg(channel uint8, kind wire.MessageKind, b0 uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: channel, Kind: kind, Bytes: []byte{b0}}
}
