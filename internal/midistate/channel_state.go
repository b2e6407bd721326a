// Package midistate implements the authoritative 16-channel MIDI state
// model: a pure, deterministic Apply function over MidiMessages, and the
// channel-mode / pedal / RPN-NRPN semantics spec.md §4.2 requires.
package midistate

// rpnNRPNNull is the "no parameter selected" sentinel value (0x3FFF, the
// null-function RPN number per the MIDI spec).
const rpnNRPNNull uint16 = 0x3FFF

// ParamSelector records which of RPN/NRPN is currently addressed by
// data-entry CCs 6/38/96/97, and the 14-bit parameter number last
// selected via the corresponding MSB/LSB CC pair.
type ParamSelector struct {
	Param    uint16 // 14-bit parameter number, rpnNRPNNull if none selected
	Value    uint16 // 14-bit current data-entry value
	paramMSB uint8
	paramLSB uint8
}

func newParamSelector() ParamSelector {
	return ParamSelector{Param: rpnNRPNNull}
}

// ChannelState is the full MIDI state of one of the 16 channels.
type ChannelState struct {
	NoteVelocities [128]uint8
	// SustainedOff marks notes that received a note-off (or were swept by
	// AllNotesOff) while the damper pedal was held: their velocity is kept
	// until pedal-up, per spec.md §3/§4.2.
	SustainedOff    [128]bool
	PolyPressure    [128]uint8
	CCValues        [128]uint8
	Program         uint8
	PitchBend       int16 // -8192..8191
	ChannelPressure uint8
	RPN             ParamSelector
	NRPN            ParamSelector
	PedalHeld       bool

	// activeSelector tracks which of RPN/NRPN the last MSB/LSB pair
	// addressed, so data-entry CCs (6/38/96/97) know which one to update.
	activeSelector selectorKind
}

type selectorKind uint8

const (
	selectorNone selectorKind = iota
	selectorRPN
	selectorNRPN
)

// NewChannelState returns a channel in its power-on default state:
// centered pitch bend, no RPN/NRPN parameter selected.
func NewChannelState() ChannelState {
	return ChannelState{
		RPN:  newParamSelector(),
		NRPN: newParamSelector(),
	}
}

// State is the full 16-channel authoritative model. Channels are indexed
// 0..15 for MIDI channels 1..16.
type State struct {
	Channels [16]ChannelState
}

// NewState returns the power-on default state for all 16 channels.
func NewState() State {
	var s State
	for i := range s.Channels {
		s.Channels[i] = NewChannelState()
	}
	return s
}
