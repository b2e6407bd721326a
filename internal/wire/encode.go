package wire

import (
	"encoding/binary"
)

// Encode serializes p into its wire form: 8-byte header, kind-specific
// body, 2-byte CRC16-CCITT trailer. It fails with *PayloadTooLargeError
// if the result would exceed MTULimit; callers that produce oversized
// SysEx bodies must split into fragments (see SplitSysEx) before calling
// Encode again.
func Encode(p *Packet) ([]byte, error) {
	var body []byte
	var kind Kind
	flags := p.Header.Flags

	switch {
	case p.MidiData != nil:
		kind = KindMidiData
		if p.MidiData.IsSysExFragment() {
			p.MidiData.Flags |= FlagSysExFragment
		}
		flags = p.MidiData.Flags
		body = encodeMidiData(p.MidiData)
	case p.Heartbeat != nil:
		kind = KindHeartbeat
		body = encodeHeartbeat(p.Heartbeat)
	case p.Identity != nil:
		kind = KindIdentity
		body = encodeIdentity(p.Identity)
	case p.Focus != nil:
		kind = KindFocus
		body = encodeFocus(p.Focus)
	case p.JournalQuery != nil:
		kind = KindJournalQuery
		body = encodeJournalQuery(p.JournalQuery)
	case p.JournalReply != nil:
		kind = KindJournalReply
		body = encodeJournalReply(p.JournalReply)
	case p.Feedback != nil:
		kind = KindFeedbackData
		body = encodeFeedback(p.Feedback)
	default:
		kind = p.Header.Kind
		body = p.RawBody
	}

	total := headerLen + len(body) + 2 // + CRC trailer
	if total > MTULimit {
		return nil, &PayloadTooLargeError{Kind: kind, Size: total}
	}

	buf := make([]byte, headerLen+len(body)+2)
	buf[0] = Magic[0]
	buf[1] = Magic[1]
	buf[2] = Version
	buf[3] = byte(kind)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(body)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(flags))
	copy(buf[headerLen:], body)

	crc := crc16CCITT(buf[:headerLen+len(body)])
	binary.BigEndian.PutUint16(buf[headerLen+len(body):], crc)

	return buf, nil
}

func encodeMidiData(d *MidiDataPacket) []byte {
	w := newWriter(64)
	w.u8(uint8(d.StreamID))
	w.u32(d.Seq)
	w.u16(d.HostID)
	w.u32(d.Epoch)
	w.u16(uint16(d.Flags))

	if d.IsSysExFragment() {
		w.u16(d.SysExID)
		w.u16(d.FragIndex)
		w.u16(d.TotalFrags)
		if d.FragFinal {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.u16(uint16(len(d.FragData)))
		w.bytes(d.FragData)
		return w.bytes_
	}

	w.u16(uint16(len(d.Messages)))
	for _, m := range d.Messages {
		w.u8(uint8(m.Kind))
		w.u8(m.Channel)
		w.u64(m.TimestampNS)
		w.u16(uint16(len(m.Bytes)))
		w.bytes(m.Bytes)
	}
	return w.bytes_
}

func encodeHeartbeat(h *HeartbeatPacket) []byte {
	w := newWriter(24)
	w.u8(uint8(h.StreamID))
	w.u16(h.HostID)
	w.u32(h.Epoch)
	w.u32(h.Seq)
	w.u64(h.TxTimeNS)
	if h.StandbyHealthy {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u8(h.InputActive)
	w.u8(h.HealthScore)
	return w.bytes_
}

func encodeIdentity(id *IdentityPacket) []byte {
	w := newWriter(64)
	w.u16(id.HostID)
	w.str(id.DeviceManufacturer)
	w.str(id.DeviceName)
	w.str(id.DeviceModel)
	w.u16(id.VendorID)
	w.u16(id.ProductID)
	w.str(id.UniqueID)
	w.u8(id.PortCountIn)
	w.u8(id.PortCountOut)
	w.u32(id.Capabilities)
	return w.bytes_
}

func encodeFocus(f *FocusPacket) []byte {
	w := newWriter(32)
	w.u8(uint8(f.Op))
	w.u64(f.ClientID)
	w.u64(f.LeaseUntilNS)
	if f.Preempt {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.str(f.Reason)
	return w.bytes_
}

func encodeJournalQuery(q *JournalQueryPacket) []byte {
	w := newWriter(8)
	w.u32(q.FromEpoch)
	w.u32(q.FromSeq)
	return w.bytes_
}

func encodeJournalReply(rp *JournalReplyPacket) []byte {
	w := newWriter(64 + len(rp.SnapshotBytes))
	w.u32(rp.Epoch)
	w.u16(rp.PartIndex)
	w.u16(rp.TotalParts)
	if rp.Final {
		w.u8(1)
	} else {
		w.u8(0)
	}
	if rp.HasSnapshot {
		w.u8(1)
		w.u32(uint32(len(rp.SnapshotBytes)))
		w.bytes(rp.SnapshotBytes)
	} else {
		w.u8(0)
	}
	w.u16(uint16(len(rp.Events)))
	for _, m := range rp.Events {
		w.u8(uint8(m.Kind))
		w.u8(m.Channel)
		w.u64(m.TimestampNS)
		w.u16(uint16(len(m.Bytes)))
		w.bytes(m.Bytes)
	}
	return w.bytes_
}

func encodeFeedback(f *FeedbackPacket) []byte {
	w := newWriter(32)
	w.u64(f.ClientID)
	w.u16(uint16(len(f.Messages)))
	for _, m := range f.Messages {
		w.u8(uint8(m.Kind))
		w.u8(m.Channel)
		w.u64(m.TimestampNS)
		w.u16(uint16(len(m.Bytes)))
		w.bytes(m.Bytes)
	}
	return w.bytes_
}

// writer is a tiny append-only byte-buffer builder shared by the body
// encoders. It never allocates more than necessary doublings, matching
// the teacher's preference for hand-rolled framing over a generic codec
// library (see DESIGN.md).
type writer struct {
	bytes_ []byte
}

func newWriter(capHint int) *writer {
	return &writer{bytes_: make([]byte, 0, capHint)}
}

func (w *writer) u8(v uint8)     { w.bytes_ = append(w.bytes_, v) }
func (w *writer) bytes(b []byte) { w.bytes_ = append(w.bytes_, b...) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.bytes_ = append(w.bytes_, b[:]...)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.bytes_ = append(w.bytes_, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.bytes_ = append(w.bytes_, b[:]...)
}

func (w *writer) str(s string) {
	w.u16(uint16(len(s)))
	w.bytes_ = append(w.bytes_, s...)
}
