package wire

// JournalQueryPacket requests reconciliation from the host's state journal:
// "give me everything needed to catch up from this (epoch,seq)". Carried
// on the control group alongside Identity/Focus, since reconciliation must
// travel over the network when host and client are separate processes
// (spec.md §4.3/§4.9 describe the operation; the transport is this
// module's completion of that gap — see DESIGN.md).
type JournalQueryPacket struct {
	FromEpoch uint32
	FromSeq   uint32
}

// JournalReplyPacket is one part of a (possibly multi-part) reconciliation
// reply: an optional compact snapshot (only ever present in part 0) plus
// an ordered slice of events to replay afterward.
type JournalReplyPacket struct {
	Epoch       uint32
	PartIndex   uint16
	TotalParts  uint16
	Final       bool
	HasSnapshot bool
	// SnapshotBytes is non-empty only when HasSnapshot is true (PartIndex 0
	// only): the journal package's compact run-length-encoded ChannelState
	// serialization. wire treats it as opaque so this leaf package never
	// depends on midistate (component ordering, spec.md §2).
	SnapshotBytes []byte
	Events        []MidiMessage
}
