package midistate

import (
	"testing"

	"github.com/hakolsound/midinet/internal/wire"
	"github.com/stretchr/testify/assert"
)

func noteOnMsg(ch, note, vel uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.NoteOn, Bytes: []byte{note, vel}}
}

func noteOffMsg(ch, note uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.NoteOff, Bytes: []byte{note, 0}}
}

func ccMsg(ch, cc, val uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.ControlChange, Bytes: []byte{cc, val}}
}

func TestNoteOnThenOffClearsVelocity(t *testing.T) {
	s := NewState()
	s = Apply(s, noteOnMsg(1, 60, 100))
	assert.Equal(t, uint8(100), s.Channels[0].NoteVelocities[60])

	s = Apply(s, noteOffMsg(1, 60))
	assert.Equal(t, uint8(0), s.Channels[0].NoteVelocities[60])
}

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	s := NewState()
	s = Apply(s, noteOnMsg(1, 60, 100))
	s = Apply(s, noteOnMsg(1, 60, 0))
	assert.Equal(t, uint8(0), s.Channels[0].NoteVelocities[60])
}

// TestPedalSustainScenario is the literal scenario 3 from spec.md §8:
// CC64=127, NoteOn 60/100, NoteOff 60, CC64=0.
func TestPedalSustainScenario(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 64, 127))
	s = Apply(s, noteOnMsg(1, 60, 100))
	s = Apply(s, noteOffMsg(1, 60))

	assert.Equal(t, uint8(100), s.Channels[0].NoteVelocities[60], "note sustained while pedal held")
	assert.True(t, s.Channels[0].SustainedOff[60])

	s = Apply(s, ccMsg(1, 64, 0))
	assert.Equal(t, uint8(0), s.Channels[0].NoteVelocities[60], "note released on pedal-up")
	assert.False(t, s.Channels[0].SustainedOff[60])
}

func TestAllNotesOffRespectsPedal(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 64, 127))
	s = Apply(s, noteOnMsg(1, 60, 100))
	s = Apply(s, ccMsg(1, 123, 0)) // All Notes Off

	assert.Equal(t, uint8(100), s.Channels[0].NoteVelocities[60], "held note survives ANO while pedal down")

	s = Apply(s, ccMsg(1, 64, 0)) // pedal up
	assert.Equal(t, uint8(0), s.Channels[0].NoteVelocities[60])
}

func TestAllSoundOffForcesReleaseEvenWithPedal(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 64, 127))
	s = Apply(s, noteOnMsg(1, 60, 100))
	s = Apply(s, ccMsg(1, 120, 0)) // All Sound Off

	assert.Equal(t, uint8(0), s.Channels[0].NoteVelocities[60])
	assert.False(t, s.Channels[0].PedalHeld)
}

func TestRPNDataEntry(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 101, 0)) // RPN MSB = 0 (pitch bend range)
	s = Apply(s, ccMsg(1, 100, 0)) // RPN LSB = 0
	s = Apply(s, ccMsg(1, 6, 12))  // data entry MSB = 12 semitones

	assert.Equal(t, uint16(0), s.Channels[0].RPN.Param)
	assert.Equal(t, uint16(12)<<7, s.Channels[0].RPN.Value)
}

func TestNRPNIndependentFromRPN(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 99, 1))
	s = Apply(s, ccMsg(1, 98, 2))
	s = Apply(s, ccMsg(1, 6, 64))

	assert.Equal(t, uint16(1)<<7|2, s.Channels[0].NRPN.Param)
	assert.NotEqual(t, uint16(0), s.Channels[0].NRPN.Value)
	assert.Equal(t, uint16(0x3FFF), s.Channels[0].RPN.Param, "RPN untouched by NRPN selection")
}

func TestResetAllControllersReleasesPedalButNotNotes(t *testing.T) {
	s := NewState()
	s = Apply(s, ccMsg(1, 64, 127))
	s = Apply(s, noteOnMsg(1, 60, 100))
	s = Apply(s, ccMsg(1, 121, 0)) // Reset All Controllers

	assert.False(t, s.Channels[0].PedalHeld)
	assert.Equal(t, uint8(100), s.Channels[0].NoteVelocities[60], "RAC does not silence notes")
}

func TestDeterminismAcrossOrderOfIndependentChannels(t *testing.T) {
	msgsA := []wire.MidiMessage{noteOnMsg(1, 60, 100), noteOnMsg(2, 61, 90)}
	msgsB := []wire.MidiMessage{noteOnMsg(2, 61, 90), noteOnMsg(1, 60, 100)}

	sa := ApplyAll(NewState(), msgsA)
	sb := ApplyAll(NewState(), msgsB)
	assert.Equal(t, sa, sb)
}

func TestAllNotesOffIdempotent(t *testing.T) {
	s := NewState()
	s = Apply(s, noteOnMsg(1, 60, 100))
	assert.True(t, Idempotent(s, 1))
}

func TestAllNotesOffAllZeroesEveryChannel(t *testing.T) {
	s := NewState()
	for c := uint8(1); c <= 16; c++ {
		s = Apply(s, noteOnMsg(c, 60, 100))
	}
	s = AllNotesOffAll(s)
	for c := 0; c < 16; c++ {
		assert.Equal(t, uint8(0), s.Channels[c].NoteVelocities[60])
	}
}
