package journal

import (
	"testing"

	"github.com/hakolsound/midinet/internal/midistate"
	"github.com/hakolsound/midinet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ccMsg(ch, cc, val uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.ControlChange, Bytes: []byte{cc, val}}
}

func noteOnMsg(ch, note, vel uint8) wire.MidiMessage {
	return wire.MidiMessage{Channel: ch, Kind: wire.NoteOn, Bytes: []byte{note, vel}}
}

func TestRecordReducesRepeatedCCWithinBatch(t *testing.T) {
	j := New(1, 16)
	batch := []wire.MidiMessage{ccMsg(1, 7, 10), ccMsg(1, 7, 20), ccMsg(1, 7, 30)}
	j.Record(midistate.NewState(), batch)

	_, events := j.ReplaySince(1, 0)
	require.Len(t, events, 1)
	assert.Equal(t, uint8(30), events[0].Bytes[1])
}

func TestRecordKeepsDistinctCCKeysAndNonCCEvents(t *testing.T) {
	j := New(1, 16)
	batch := []wire.MidiMessage{ccMsg(1, 7, 10), ccMsg(1, 8, 20), noteOnMsg(1, 60, 100)}
	j.Record(midistate.NewState(), batch)

	_, events := j.ReplaySince(1, 0)
	require.Len(t, events, 3)
}

func TestReplaySinceDifferentEpochReturnsSnapshot(t *testing.T) {
	j := New(1, 16)
	state := midistate.NewState()
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 60, 100)})
	j.Snapshot(state)

	snap, events := j.ReplaySince(999, 0)
	require.NotNil(t, snap)
	assert.Equal(t, uint32(1), snap.Epoch)
	assert.Nil(t, events)
}

func TestReplaySinceWithinRingReturnsOnlyEvents(t *testing.T) {
	j := New(1, 16)
	state := midistate.NewState()
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 60, 100)})
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 61, 90)})

	snap, events := j.ReplaySince(1, 1)
	assert.Nil(t, snap)
	require.Len(t, events, 1)
	assert.Equal(t, uint8(61), events[0].Bytes[0])
}

func TestOverflowPromotesSnapshotBeforeEviction(t *testing.T) {
	j := New(1, 2) // capacity 2
	state := midistate.NewState()
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 60, 100)})
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 61, 90)})
	// Third record overflows the 2-slot ring and should force a snapshot
	// of the post-batch state before evicting seq 1 (note 60).
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 62, 80)})

	snap, events := j.ReplaySince(1, 0)
	require.NotNil(t, snap, "overflow should have promoted a snapshot covering the evicted entry")
	for _, e := range events {
		assert.NotEqual(t, uint8(60), e.Bytes[0], "evicted event must not reappear in the event tail")
	}
}

func TestReplaySinceIsIdempotent(t *testing.T) {
	j := New(3, 16)
	state := midistate.NewState()
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 60, 100)})
	j.Snapshot(state)
	j.Record(state, []wire.MidiMessage{noteOnMsg(1, 61, 90)})

	snap1, events1 := j.ReplaySince(3, 0)
	snap2, events2 := j.ReplaySince(3, 0)
	assert.Equal(t, snap1, snap2)
	assert.Equal(t, events1, events2)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := midistate.NewState()
	s = midistate.Apply(s, ccMsg(1, 64, 127))
	s = midistate.Apply(s, noteOnMsg(1, 60, 100))
	s = midistate.Apply(s, noteOnMsg(1, 61, 90))

	buf := EncodeSnapshot(s)
	got, err := DecodeSnapshot(buf)
	require.NoError(t, err)

	assert.Equal(t, s.Channels[0].NoteVelocities, got.Channels[0].NoteVelocities)
	assert.Equal(t, s.Channels[0].PedalHeld, got.Channels[0].PedalHeld)
	assert.Equal(t, s.Channels[0].CCValues, got.Channels[0].CCValues)
}

func TestSnapshotRoundTripEmptyState(t *testing.T) {
	s := midistate.NewState()
	buf := EncodeSnapshot(s)
	got, err := DecodeSnapshot(buf)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
