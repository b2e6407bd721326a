package vmidi

import (
	"fmt"

	"github.com/hakolsound/midinet/internal/wire"
)

// toRaw expands a canonical MidiMessage (status nibble implied by Kind,
// channel carried separately, Bytes holding only the data bytes) into the
// raw status-byte-prefixed form a gomidi drivers.Out.Send expects.
func toRaw(msg wire.MidiMessage) ([]byte, error) {
	if msg.Kind.IsChannelVoice() {
		if msg.Channel < 1 || msg.Channel > 16 {
			return nil, fmt.Errorf("vmidi: channel-voice message with out-of-range channel %d", msg.Channel)
		}
		status, err := channelStatusByte(msg.Kind)
		if err != nil {
			return nil, err
		}
		status |= msg.Channel - 1
		raw := make([]byte, 0, 1+len(msg.Bytes))
		raw = append(raw, status)
		return append(raw, msg.Bytes...), nil
	}

	switch msg.Kind {
	case wire.SysEx:
		raw := make([]byte, 0, 2+len(msg.Bytes))
		raw = append(raw, 0xF0)
		raw = append(raw, msg.Bytes...)
		return append(raw, 0xF7), nil
	case wire.Clock:
		return []byte{0xF8}, nil
	case wire.Start:
		return []byte{0xFA}, nil
	case wire.Continue:
		return []byte{0xFB}, nil
	case wire.Stop:
		return []byte{0xFC}, nil
	case wire.ActiveSensing:
		return []byte{0xFE}, nil
	case wire.SystemReset:
		return []byte{0xFF}, nil
	default:
		return nil, fmt.Errorf("vmidi: unsupported message kind %d", msg.Kind)
	}
}

func channelStatusByte(kind wire.MessageKind) (uint8, error) {
	switch kind {
	case wire.NoteOff:
		return 0x80, nil
	case wire.NoteOn:
		return 0x90, nil
	case wire.PolyPressure:
		return 0xA0, nil
	case wire.ControlChange:
		return 0xB0, nil
	case wire.ProgramChange:
		return 0xC0, nil
	case wire.ChannelPressure:
		return 0xD0, nil
	case wire.PitchBend:
		return 0xE0, nil
	default:
		return 0, fmt.Errorf("vmidi: kind %d is not a channel-voice status", kind)
	}
}

// fromRaw is the inverse of toRaw, used by a device's read side to
// canonicalize bytes arriving from the physical/virtual port into the
// same MidiMessage shape the host ingress and wire codec use.
func fromRaw(raw []byte, timestampNS uint64) (wire.MidiMessage, error) {
	if len(raw) == 0 {
		return wire.MidiMessage{}, fmt.Errorf("vmidi: empty MIDI message")
	}
	status := raw[0]

	if status >= 0x80 && status < 0xF0 {
		kind, err := kindFromStatusNibble(status & 0xF0)
		if err != nil {
			return wire.MidiMessage{}, err
		}
		channel := (status & 0x0F) + 1
		data := raw[1:]
		if kind == wire.NoteOn && len(data) == 2 && data[1] == 0 {
			kind = wire.NoteOff // running-status convention: NoteOn velocity 0 == NoteOff
		}
		return wire.MidiMessage{Channel: channel, Kind: kind, Bytes: append([]byte(nil), data...), TimestampNS: timestampNS}, nil
	}

	switch status {
	case 0xF0:
		body := raw[1:]
		if n := len(body); n > 0 && body[n-1] == 0xF7 {
			body = body[:n-1]
		}
		return wire.MidiMessage{Kind: wire.SysEx, Bytes: append([]byte(nil), body...), TimestampNS: timestampNS}, nil
	case 0xF8:
		return wire.MidiMessage{Kind: wire.Clock, TimestampNS: timestampNS}, nil
	case 0xFA:
		return wire.MidiMessage{Kind: wire.Start, TimestampNS: timestampNS}, nil
	case 0xFB:
		return wire.MidiMessage{Kind: wire.Continue, TimestampNS: timestampNS}, nil
	case 0xFC:
		return wire.MidiMessage{Kind: wire.Stop, TimestampNS: timestampNS}, nil
	case 0xFE:
		return wire.MidiMessage{Kind: wire.ActiveSensing, TimestampNS: timestampNS}, nil
	case 0xFF:
		return wire.MidiMessage{Kind: wire.SystemReset, TimestampNS: timestampNS}, nil
	default:
		return wire.MidiMessage{}, fmt.Errorf("vmidi: unrecognised status byte 0x%02X", status)
	}
}

func kindFromStatusNibble(nibble byte) (wire.MessageKind, error) {
	switch nibble {
	case 0x80:
		return wire.NoteOff, nil
	case 0x90:
		return wire.NoteOn, nil
	case 0xA0:
		return wire.PolyPressure, nil
	case 0xB0:
		return wire.ControlChange, nil
	case 0xC0:
		return wire.ProgramChange, nil
	case 0xD0:
		return wire.ChannelPressure, nil
	case 0xE0:
		return wire.PitchBend, nil
	default:
		return 0, fmt.Errorf("vmidi: unrecognised channel-voice status nibble 0x%02X", nibble)
	}
}
