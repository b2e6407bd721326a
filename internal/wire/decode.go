package wire

import (
	"encoding/binary"
	"errors"
)

// errTruncated is the sentinel the reader helper returns; Decode turns it
// into a *ParseError{Kind: TruncatedBody}.
var errTruncated = errors.New("truncated")

// Decode parses a wire packet. Unknown kinds are tolerated: they pass
// magic/version/length/checksum validation and are returned as a Packet
// with RawBody set and Header.Kind preserving the unrecognised value, so
// callers can drop them with a counter increment while staying
// forward-compatible with future wire kinds.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < headerLen+2 {
		return nil, &ParseError{Kind: TruncatedBody, Msg: "shorter than header+crc"}
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] {
		return nil, &ParseError{Kind: BadMagic}
	}
	version := buf[2]
	if version != Version {
		return nil, &ParseError{Kind: UnsupportedVersion, Msg: formatVersion(version)}
	}
	kind := Kind(buf[3])
	bodyLen := int(binary.BigEndian.Uint16(buf[4:6]))
	flags := Flags(binary.BigEndian.Uint16(buf[6:8]))

	if len(buf) != headerLen+bodyLen+2 {
		return nil, &ParseError{Kind: LengthMismatch}
	}

	gotCRC := binary.BigEndian.Uint16(buf[headerLen+bodyLen:])
	wantCRC := crc16CCITT(buf[:headerLen+bodyLen])
	if gotCRC != wantCRC {
		return nil, &ParseError{Kind: ChecksumMismatch}
	}

	body := buf[headerLen : headerLen+bodyLen]
	header := Header{Version: version, Kind: kind, Length: uint16(bodyLen), Flags: flags}

	var pkt *Packet
	var err error
	switch kind {
	case KindMidiData:
		var d *MidiDataPacket
		d, err = decodeMidiData(body)
		pkt = &Packet{Header: header, MidiData: d}
	case KindHeartbeat:
		var h *HeartbeatPacket
		h, err = decodeHeartbeat(body)
		pkt = &Packet{Header: header, Heartbeat: h}
	case KindIdentity:
		var id *IdentityPacket
		id, err = decodeIdentity(body)
		pkt = &Packet{Header: header, Identity: id}
	case KindFocus:
		var f *FocusPacket
		f, err = decodeFocus(body)
		pkt = &Packet{Header: header, Focus: f}
	case KindJournalQuery:
		var q *JournalQueryPacket
		q, err = decodeJournalQuery(body)
		pkt = &Packet{Header: header, JournalQuery: q}
	case KindJournalReply:
		var rp *JournalReplyPacket
		rp, err = decodeJournalReply(body)
		pkt = &Packet{Header: header, JournalReply: rp}
	case KindFeedbackData:
		var f *FeedbackPacket
		f, err = decodeFeedback(body)
		pkt = &Packet{Header: header, Feedback: f}
	default:
		bodyCopy := make([]byte, len(body))
		copy(bodyCopy, body)
		return &Packet{Header: header, RawBody: bodyCopy}, nil
	}
	if err != nil {
		return nil, &ParseError{Kind: TruncatedBody, Msg: err.Error()}
	}
	return pkt, nil
}

func decodeMidiData(body []byte) (*MidiDataPacket, error) {
	r := newReader(body)
	d := &MidiDataPacket{}
	streamID, err := r.u8()
	if err != nil {
		return nil, err
	}
	d.StreamID = StreamID(streamID)
	if d.Seq, err = r.u32(); err != nil {
		return nil, err
	}
	if d.HostID, err = r.u16(); err != nil {
		return nil, err
	}
	if d.Epoch, err = r.u32(); err != nil {
		return nil, err
	}
	flagBits, err := r.u16()
	if err != nil {
		return nil, err
	}
	d.Flags = Flags(flagBits)

	if d.Flags&FlagSysExFragment != 0 {
		if d.SysExID, err = r.u16(); err != nil {
			return nil, err
		}
		if d.FragIndex, err = r.u16(); err != nil {
			return nil, err
		}
		if d.TotalFrags, err = r.u16(); err != nil {
			return nil, err
		}
		finalByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		d.FragFinal = finalByte != 0
		if d.FragData, err = r.lenPrefixedBytes(); err != nil {
			return nil, err
		}
		return d, nil
	}

	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	d.Messages = make([]MidiMessage, 0, count)
	for range count {
		var m MidiMessage
		kindByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		m.Kind = MessageKind(kindByte)
		if m.Channel, err = r.u8(); err != nil {
			return nil, err
		}
		if m.TimestampNS, err = r.u64(); err != nil {
			return nil, err
		}
		if m.Bytes, err = r.lenPrefixedBytes(); err != nil {
			return nil, err
		}
		d.Messages = append(d.Messages, m)
	}
	return d, nil
}

func decodeHeartbeat(body []byte) (*HeartbeatPacket, error) {
	r := newReader(body)
	h := &HeartbeatPacket{}
	streamID, err := r.u8()
	if err != nil {
		return nil, err
	}
	h.StreamID = StreamID(streamID)
	if h.HostID, err = r.u16(); err != nil {
		return nil, err
	}
	if h.Epoch, err = r.u32(); err != nil {
		return nil, err
	}
	if h.Seq, err = r.u32(); err != nil {
		return nil, err
	}
	if h.TxTimeNS, err = r.u64(); err != nil {
		return nil, err
	}
	standby, err := r.u8()
	if err != nil {
		return nil, err
	}
	h.StandbyHealthy = standby != 0
	if h.InputActive, err = r.u8(); err != nil {
		return nil, err
	}
	if h.HealthScore, err = r.u8(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeIdentity(body []byte) (*IdentityPacket, error) {
	r := newReader(body)
	id := &IdentityPacket{}
	var err error
	if id.HostID, err = r.u16(); err != nil {
		return nil, err
	}
	if id.DeviceManufacturer, err = r.lenPrefixedString(); err != nil {
		return nil, err
	}
	if id.DeviceName, err = r.lenPrefixedString(); err != nil {
		return nil, err
	}
	if id.DeviceModel, err = r.lenPrefixedString(); err != nil {
		return nil, err
	}
	if id.VendorID, err = r.u16(); err != nil {
		return nil, err
	}
	if id.ProductID, err = r.u16(); err != nil {
		return nil, err
	}
	if id.UniqueID, err = r.lenPrefixedString(); err != nil {
		return nil, err
	}
	if id.PortCountIn, err = r.u8(); err != nil {
		return nil, err
	}
	if id.PortCountOut, err = r.u8(); err != nil {
		return nil, err
	}
	if id.Capabilities, err = r.u32(); err != nil {
		return nil, err
	}
	return id, nil
}

func decodeFocus(body []byte) (*FocusPacket, error) {
	r := newReader(body)
	f := &FocusPacket{}
	op, err := r.u8()
	if err != nil {
		return nil, err
	}
	f.Op = FocusOp(op)
	if f.ClientID, err = r.u64(); err != nil {
		return nil, err
	}
	if f.LeaseUntilNS, err = r.u64(); err != nil {
		return nil, err
	}
	preempt, err := r.u8()
	if err != nil {
		return nil, err
	}
	f.Preempt = preempt != 0
	if f.Reason, err = r.lenPrefixedString(); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeJournalQuery(body []byte) (*JournalQueryPacket, error) {
	r := newReader(body)
	q := &JournalQueryPacket{}
	var err error
	if q.FromEpoch, err = r.u32(); err != nil {
		return nil, err
	}
	if q.FromSeq, err = r.u32(); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeJournalReply(body []byte) (*JournalReplyPacket, error) {
	r := newReader(body)
	rp := &JournalReplyPacket{}
	var err error
	if rp.Epoch, err = r.u32(); err != nil {
		return nil, err
	}
	if rp.PartIndex, err = r.u16(); err != nil {
		return nil, err
	}
	if rp.TotalParts, err = r.u16(); err != nil {
		return nil, err
	}
	finalByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	rp.Final = finalByte != 0

	hasSnapshot, err := r.u8()
	if err != nil {
		return nil, err
	}
	rp.HasSnapshot = hasSnapshot != 0
	if rp.HasSnapshot {
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		if err := r.need(int(n)); err != nil {
			return nil, err
		}
		rp.SnapshotBytes = make([]byte, n)
		copy(rp.SnapshotBytes, r.buf[r.pos:r.pos+int(n)])
		r.pos += int(n)
	}

	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	rp.Events = make([]MidiMessage, 0, count)
	for range count {
		var m MidiMessage
		kindByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		m.Kind = MessageKind(kindByte)
		if m.Channel, err = r.u8(); err != nil {
			return nil, err
		}
		if m.TimestampNS, err = r.u64(); err != nil {
			return nil, err
		}
		if m.Bytes, err = r.lenPrefixedBytes(); err != nil {
			return nil, err
		}
		rp.Events = append(rp.Events, m)
	}
	return rp, nil
}

func decodeFeedback(body []byte) (*FeedbackPacket, error) {
	r := newReader(body)
	f := &FeedbackPacket{}
	var err error
	if f.ClientID, err = r.u64(); err != nil {
		return nil, err
	}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	f.Messages = make([]MidiMessage, 0, count)
	for range count {
		var m MidiMessage
		kindByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		m.Kind = MessageKind(kindByte)
		if m.Channel, err = r.u8(); err != nil {
			return nil, err
		}
		if m.TimestampNS, err = r.u64(); err != nil {
			return nil, err
		}
		if m.Bytes, err = r.lenPrefixedBytes(); err != nil {
			return nil, err
		}
		f.Messages = append(f.Messages, m)
	}
	return f, nil
}

func formatVersion(v uint8) string {
	return "got version " + string(rune('0'+v))
}

// reader is the counterpart to writer: a cursor over a decode buffer that
// returns errTruncated instead of panicking on short input.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return errTruncated
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) lenPrefixedBytes() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) lenPrefixedString() (string, error) {
	b, err := r.lenPrefixedBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
