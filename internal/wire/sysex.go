package wire

// fixedOverhead and perMessageHeader together count the bytes Encode
// spends on everything around a single whole MIDI message inside a
// non-fragmented MidiData packet: the 8-byte header, the 15-byte
// stream/seq/host/epoch/flags/count prefix, the per-message
// kind+channel+timestamp+length fields, and the 2-byte CRC trailer.
const (
	fixedOverhead    = headerLen + 1 + 4 + 2 + 4 + 2 + 2 + 2 // header + streamID + seq + hostID + epoch + flags + count + crc
	perMessageHeader = 1 + 1 + 8 + 2                         // kind + channel + timestamp + len
	fragHeaderExtra  = 2 + 2 + 2 + 1 + 2                     // sysexID + fragIdx + totalFrags + final + len, replacing count+perMessageHeader
)

// MaxWholeSysExBytes is the largest SysEx payload that fits inline in a
// single, non-fragmented MidiDataPacket alongside no other messages.
func MaxWholeSysExBytes() int {
	return MTULimit - fixedOverhead - perMessageHeader
}

// maxFragmentBytes is the largest data payload one SysEx fragment packet
// can carry.
func maxFragmentBytes() int {
	return MTULimit - (headerLen + 1 + 4 + 2 + 4 + 2 + 2) - fragHeaderExtra
}

// NeedsSplit reports whether a SysEx payload of the given length must be
// fragmented to fit the wire MTU.
func NeedsSplit(sysexLen int) bool {
	return sysexLen > MaxWholeSysExBytes()
}

// SplitSysEx fragments a SysEx payload into MidiDataPackets addressed by
// sysexID, each within the wire MTU. Receivers hold at most 8 in-flight
// SysEx streams per sender; on overflow the oldest is discarded (enforced
// by the receiver's reassembly table, not here).
func SplitSysEx(streamID StreamID, hostID uint16, epoch uint32, sysexID uint16, data []byte) []*MidiDataPacket {
	if !NeedsSplit(len(data)) {
		return []*MidiDataPacket{{
			StreamID: streamID,
			HostID:   hostID,
			Epoch:    epoch,
			Messages: []MidiMessage{{Kind: SysEx, Bytes: data}},
		}}
	}

	// A fragment carries no more than a whole packet could, so a payload
	// one byte over MaxWholeSysExBytes splits into two fragments.
	chunk := min(maxFragmentBytes(), MaxWholeSysExBytes())
	total := (len(data) + chunk - 1) / chunk
	out := make([]*MidiDataPacket, 0, total)
	for i := range total {
		start := i * chunk
		end := min(start+chunk, len(data))
		out = append(out, &MidiDataPacket{
			StreamID:   streamID,
			HostID:     hostID,
			Epoch:      epoch,
			Flags:      FlagSysExFragment,
			SysExID:    sysexID,
			FragIndex:  uint16(i),
			TotalFrags: uint16(total),
			FragFinal:  i == total-1,
			FragData:   data[start:end],
		})
	}
	return out
}

// sysExReassemblySlots bounds how many concurrent in-flight SysEx streams
// a receiver tracks per sender; overflow evicts the oldest (see
// SysExReassembler).
const sysExReassemblySlots = 8

// sysExSlabSize is the pre-allocated capacity of each reassembly slot.
const sysExSlabSize = 16 * 1024

// SysExReassembler reconstructs SysEx payloads from fragment packets for
// one remote sender (host_id). It holds a bounded slab of in-flight
// streams; when a new sysex_id arrives and all slots are full, the oldest
// in-flight stream is evicted.
type SysExReassembler struct {
	slots [sysExReassemblySlots]*sysexStream
	order []uint16 // sysexID insertion order, oldest first
}

type sysexStream struct {
	sysexID   uint16
	total     uint16
	buf       []byte
	haveFrags map[uint16]bool
}

// NewSysExReassembler returns an empty reassembler.
func NewSysExReassembler() *SysExReassembler {
	return &SysExReassembler{}
}

// Accept folds one fragment packet in. It returns the completed payload
// and true once the final fragment of its stream has arrived and all
// fragments are accounted for.
func (r *SysExReassembler) Accept(d *MidiDataPacket) ([]byte, bool) {
	if !d.IsSysExFragment() {
		return nil, false
	}

	s := r.find(d.SysExID)
	if s == nil {
		s = &sysexStream{
			sysexID:   d.SysExID,
			total:     d.TotalFrags,
			buf:       make([]byte, 0, sysExSlabSize),
			haveFrags: make(map[uint16]bool, d.TotalFrags),
		}
		r.insert(s)
	}

	s.appendFragment(d)

	if len(s.haveFrags) == int(s.total) {
		r.remove(s.sysexID)
		return s.buf, true
	}
	return nil, false
}

func (s *sysexStream) appendFragment(d *MidiDataPacket) {
	if s.haveFrags[d.FragIndex] {
		return
	}
	s.haveFrags[d.FragIndex] = true
	s.buf = append(s.buf, d.FragData...)
}

func (r *SysExReassembler) find(id uint16) *sysexStream {
	for _, s := range r.slots {
		if s != nil && s.sysexID == id {
			return s
		}
	}
	return nil
}

func (r *SysExReassembler) insert(s *sysexStream) {
	for i, slot := range r.slots {
		if slot == nil {
			r.slots[i] = s
			r.order = append(r.order, s.sysexID)
			return
		}
	}
	// Full: evict the oldest in-flight stream.
	oldestID := r.order[0]
	r.order = r.order[1:]
	for i, slot := range r.slots {
		if slot != nil && slot.sysexID == oldestID {
			r.slots[i] = s
			break
		}
	}
	r.order = append(r.order, s.sysexID)
}

func (r *SysExReassembler) remove(id uint16) {
	for i, slot := range r.slots {
		if slot != nil && slot.sysexID == id {
			r.slots[i] = nil
		}
	}
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
