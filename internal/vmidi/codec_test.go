package vmidi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/wire"
)

func TestToRawChannelVoice(t *testing.T) {
	cases := []struct {
		name string
		msg  wire.MidiMessage
		want []byte
	}{
		{"note on ch1", wire.MidiMessage{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{60, 100}}, []byte{0x90, 60, 100}},
		{"note off ch16", wire.MidiMessage{Channel: 16, Kind: wire.NoteOff, Bytes: []byte{60, 0}}, []byte{0x8F, 60, 0}},
		{"cc ch10", wire.MidiMessage{Channel: 10, Kind: wire.ControlChange, Bytes: []byte{7, 127}}, []byte{0xB9, 7, 127}},
		{"program change", wire.MidiMessage{Channel: 1, Kind: wire.ProgramChange, Bytes: []byte{5}}, []byte{0xC0, 5}},
		{"pitch bend", wire.MidiMessage{Channel: 2, Kind: wire.PitchBend, Bytes: []byte{0, 64}}, []byte{0xE1, 0, 64}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toRaw(tc.msg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToRawSystemMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  wire.MidiMessage
		want []byte
	}{
		{"clock", wire.MidiMessage{Kind: wire.Clock}, []byte{0xF8}},
		{"start", wire.MidiMessage{Kind: wire.Start}, []byte{0xFA}},
		{"sysex", wire.MidiMessage{Kind: wire.SysEx, Bytes: []byte{0x41, 0x10}}, []byte{0xF0, 0x41, 0x10, 0xF7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toRaw(tc.msg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToRawRejectsOutOfRangeChannel(t *testing.T) {
	_, err := toRaw(wire.MidiMessage{Channel: 0, Kind: wire.NoteOn, Bytes: []byte{60, 100}})
	assert.Error(t, err)
	_, err = toRaw(wire.MidiMessage{Channel: 17, Kind: wire.NoteOn, Bytes: []byte{60, 100}})
	assert.Error(t, err)
}

func TestFromRawRoundTripsChannelVoice(t *testing.T) {
	orig := wire.MidiMessage{Channel: 5, Kind: wire.ControlChange, Bytes: []byte{10, 64}}
	raw, err := toRaw(orig)
	require.NoError(t, err)
	back, err := fromRaw(raw, 1234)
	require.NoError(t, err)
	assert.Equal(t, orig.Channel, back.Channel)
	assert.Equal(t, orig.Kind, back.Kind)
	assert.Equal(t, orig.Bytes, back.Bytes)
	assert.Equal(t, uint64(1234), back.TimestampNS)
}

func TestFromRawNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	msg, err := fromRaw([]byte{0x91, 60, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, wire.NoteOff, msg.Kind)
	assert.Equal(t, uint8(2), msg.Channel)
}

func TestFromRawStripsSysExTerminator(t *testing.T) {
	msg, err := fromRaw([]byte{0xF0, 1, 2, 3, 0xF7}, 0)
	require.NoError(t, err)
	assert.Equal(t, wire.SysEx, msg.Kind)
	assert.Equal(t, []byte{1, 2, 3}, msg.Bytes)
}

func TestFromRawRejectsEmpty(t *testing.T) {
	_, err := fromRaw(nil, 0)
	assert.Error(t, err)
}

func TestFromRawRejectsUnknownStatus(t *testing.T) {
	_, err := fromRaw([]byte{0xF5}, 0)
	assert.Error(t, err)
}
