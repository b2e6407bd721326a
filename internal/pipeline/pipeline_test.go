package pipeline

import (
	"testing"

	"github.com/hakolsound/midinet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noteOn(ch, note, vel uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.NoteOn, Bytes: []byte{note, vel}}
}

func cc(ch, ccNum, val uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.ControlChange, Bytes: []byte{ccNum, val}}
}

func TestChannelFilterDropsMaskedChannel(t *testing.T) {
	p := &Pipeline{Stages: []Stage{ChannelFilter{Mask: 0x0001}}}
	_, ok := p.Process(noteOn(2, 60, 100))
	assert.False(t, ok)

	out, ok := p.Process(noteOn(1, 60, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(1), out.Channel)
}

func TestChannelRemap(t *testing.T) {
	var m [17]uint8
	m[1] = 5
	p := &Pipeline{Stages: []Stage{ChannelRemap{Map: m}}}
	out, ok := p.Process(noteOn(1, 60, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(5), out.Channel)
}

func TestChannelRemapDropsUnmappedChannel(t *testing.T) {
	p := &Pipeline{Stages: []Stage{ChannelRemap{}}}
	_, ok := p.Process(noteOn(1, 60, 100))
	assert.False(t, ok)
}

func TestCcRemap(t *testing.T) {
	p := &Pipeline{Stages: []Stage{CcRemap{Rules: []CcRemapRule{{SrcCC: 7, DstCC: 11}}}}}
	out, ok := p.Process(cc(1, 7, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(11), out.Bytes[0])
}

func TestVelocityCurveFixed(t *testing.T) {
	p := &Pipeline{Stages: []Stage{VelocityCurve{Kind: VelocityFixed, Fixed: 100}}}
	out, ok := p.Process(noteOn(1, 60, 5))
	require.True(t, ok)
	assert.Equal(t, uint8(100), out.Bytes[1])
}

func TestVelocityCurveNeverTouchesNoteOffConvention(t *testing.T) {
	p := &Pipeline{Stages: []Stage{VelocityCurve{Kind: VelocityFixed, Fixed: 100}}}
	out, ok := p.Process(noteOn(1, 60, 0))
	require.True(t, ok)
	assert.Equal(t, uint8(0), out.Bytes[1], "velocity-0 note-off convention must survive the curve")
}

func TestNoteRangeDrop(t *testing.T) {
	p := &Pipeline{Stages: []Stage{NoteRange{Low: 36, High: 96, Action: NoteRangeDrop}}}
	_, ok := p.Process(noteOn(1, 10, 100))
	assert.False(t, ok)
}

func TestNoteRangeClip(t *testing.T) {
	p := &Pipeline{Stages: []Stage{NoteRange{Low: 36, High: 96, Action: NoteRangeClip}}}
	out, ok := p.Process(noteOn(1, 10, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(36), out.Bytes[0])
}

func TestNoteRangeTranspose(t *testing.T) {
	p := &Pipeline{Stages: []Stage{NoteRange{Low: 36, High: 96, Action: NoteRangeTranspose, Transpose: 12}}}
	out, ok := p.Process(noteOn(1, 30, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(42), out.Bytes[0])
}

// TestHotReloadObservedOnNextMessage is the literal scenario 6 from
// spec.md §8: a reload published mid-stream changes the very next frame.
func TestHotReloadObservedOnNextMessage(t *testing.T) {
	pub := NewPublisher(&Pipeline{Stages: []Stage{ChannelFilter{Mask: 0xFFFF}}})

	_, ok := pub.Load().Process(cc(2, 1, 64))
	require.True(t, ok, "channel 2 passes under the wide-open mask")

	pub.Store(&Pipeline{Stages: []Stage{ChannelFilter{Mask: 0x0001}}})

	_, ok = pub.Load().Process(cc(2, 1, 64))
	assert.False(t, ok, "channel 2 dropped immediately after the narrower mask is published")
}

func TestNilPipelineIsPassThrough(t *testing.T) {
	var p *Pipeline
	out, ok := p.Process(noteOn(1, 60, 100))
	require.True(t, ok)
	assert.Equal(t, uint8(60), out.Bytes[0])
}
