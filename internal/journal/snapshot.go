package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/hakolsound/midinet/internal/midistate"
)

// snapshotFormatVersion lets a future reconciliation protocol change the
// encoding without breaking decode of snapshots already on the wire
// between mismatched builds (they'll just fail the version check instead
// of silently misparsing).
const snapshotFormatVersion uint8 = 1

// EncodeSnapshot serializes a midistate.State into the compact run-length
// form spec.md §4.3 calls for. wire.JournalReplyPacket.SnapshotBytes
// carries the result opaquely; only this package interprets it.
func EncodeSnapshot(s midistate.State) []byte {
	w := make([]byte, 0, 512)
	w = append(w, snapshotFormatVersion)

	for ch := 0; ch < 16; ch++ {
		c := s.Channels[ch]
		w = appendRLE128(w, c.NoteVelocities[:])
		w = appendRLEBool128(w, c.SustainedOff[:])
		w = appendRLE128(w, c.PolyPressure[:])
		w = appendRLE128(w, c.CCValues[:])
		w = append(w, c.Program)
		w = appendInt16(w, c.PitchBend)
		w = append(w, c.ChannelPressure)
		w = appendBool(w, c.PedalHeld)
		w = appendUint16(w, c.RPN.Param)
		w = appendUint16(w, c.RPN.Value)
		w = appendUint16(w, c.NRPN.Param)
		w = appendUint16(w, c.NRPN.Value)
	}
	return w
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(buf []byte) (midistate.State, error) {
	var s midistate.State
	r := &snapReader{buf: buf}

	version, err := r.u8()
	if err != nil {
		return s, err
	}
	if version != snapshotFormatVersion {
		return s, fmt.Errorf("journal: unsupported snapshot format version %d", version)
	}

	for ch := 0; ch < 16; ch++ {
		var c midistate.ChannelState
		if c.NoteVelocities, err = r.rle128(); err != nil {
			return s, err
		}
		if c.SustainedOff, err = r.rleBool128(); err != nil {
			return s, err
		}
		if c.PolyPressure, err = r.rle128(); err != nil {
			return s, err
		}
		if c.CCValues, err = r.rle128(); err != nil {
			return s, err
		}
		if c.Program, err = r.u8(); err != nil {
			return s, err
		}
		if c.PitchBend, err = r.i16(); err != nil {
			return s, err
		}
		if c.ChannelPressure, err = r.u8(); err != nil {
			return s, err
		}
		if c.PedalHeld, err = r.boolean(); err != nil {
			return s, err
		}
		if c.RPN.Param, err = r.u16(); err != nil {
			return s, err
		}
		if c.RPN.Value, err = r.u16(); err != nil {
			return s, err
		}
		if c.NRPN.Param, err = r.u16(); err != nil {
			return s, err
		}
		if c.NRPN.Value, err = r.u16(); err != nil {
			return s, err
		}
		s.Channels[ch] = c
	}
	return s, nil
}

// appendRLE128 run-length-encodes a 128-entry uint8 array as a sequence of
// (value, runLength) pairs. Channel state is overwhelmingly zero (idle
// notes/CCs), so this is typically a few bytes instead of 128.
func appendRLE128(w []byte, arr []uint8) []byte {
	i := 0
	for i < len(arr) {
		v := arr[i]
		run := 1
		for i+run < len(arr) && arr[i+run] == v && run < 255 {
			run++
		}
		w = append(w, v, uint8(run))
		i += run
	}
	return w
}

func appendRLEBool128(w []byte, arr []bool) []byte {
	packed := make([]uint8, len(arr))
	for i, b := range arr {
		if b {
			packed[i] = 1
		}
	}
	return appendRLE128(w, packed)
}

func appendUint16(w []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(w, b[:]...)
}

func appendInt16(w []byte, v int16) []byte {
	return appendUint16(w, uint16(v))
}

func appendBool(w []byte, b bool) []byte {
	if b {
		return append(w, 1)
	}
	return append(w, 0)
}

type snapReader struct {
	buf []byte
	pos int
}

func (r *snapReader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return fmt.Errorf("journal: truncated snapshot")
	}
	return nil
}

func (r *snapReader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *snapReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *snapReader) i16() (int16, error) {
	v, err := r.u16()
	return int16(v), err
}

func (r *snapReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *snapReader) rle128() ([128]uint8, error) {
	var out [128]uint8
	n := 0
	for n < 128 {
		v, err := r.u8()
		if err != nil {
			return out, err
		}
		run, err := r.u8()
		if err != nil {
			return out, err
		}
		if n+int(run) > 128 {
			return out, fmt.Errorf("journal: RLE run overruns channel array")
		}
		for k := 0; k < int(run); k++ {
			out[n] = v
			n++
		}
	}
	return out, nil
}

func (r *snapReader) rleBool128() ([128]bool, error) {
	packed, err := r.rle128()
	if err != nil {
		return [128]bool{}, err
	}
	var out [128]bool
	for i, v := range packed {
		out[i] = v != 0
	}
	return out, nil
}
