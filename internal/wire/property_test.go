package wire

import (
	"testing"

	"pgregory.net/rapid"
)

// TestMidiDataRoundTripProperty checks decode(encode(p)) == p for arbitrary
// well-formed MidiDataPackets, per the round-trip invariant in spec §8.
func TestMidiDataRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		msgs := make([]MidiMessage, n)
		for i := range msgs {
			kind := MessageKind(rapid.IntRange(int(NoteOff), int(SystemReset)).Draw(rt, "kind"))
			nbytes := rapid.IntRange(0, 3).Draw(rt, "nbytes")
			data := make([]byte, nbytes)
			for j := range data {
				data[j] = byte(rapid.IntRange(0, 255).Draw(rt, "b"))
			}
			msgs[i] = MidiMessage{
				Channel:     uint8(rapid.IntRange(0, 16).Draw(rt, "ch")),
				Kind:        kind,
				Bytes:       data,
				TimestampNS: rapid.Uint64().Draw(rt, "ts"),
			}
		}

		d := &MidiDataPacket{
			StreamID: StreamID(rapid.IntRange(0, 1).Draw(rt, "stream")),
			Seq:      rapid.Uint32().Draw(rt, "seq"),
			HostID:   rapid.Uint16().Draw(rt, "host"),
			Epoch:    rapid.Uint32().Draw(rt, "epoch"),
			Messages: msgs,
		}

		buf, err := Encode(&Packet{MidiData: d})
		if err != nil {
			// Oversized draws are expected to be rejected; nothing more to check.
			return
		}

		got, err := Decode(buf)
		if err != nil {
			rt.Fatalf("decode of just-encoded packet failed: %v", err)
		}
		if len(got.MidiData.Messages) != len(d.Messages) {
			rt.Fatalf("message count mismatch: got %d want %d", len(got.MidiData.Messages), len(d.Messages))
		}
		for i := range d.Messages {
			want := d.Messages[i]
			have := got.MidiData.Messages[i]
			if want.Channel != have.Channel || want.Kind != have.Kind || want.TimestampNS != have.TimestampNS {
				rt.Fatalf("message %d mismatch: got %+v want %+v", i, have, want)
			}
			if len(want.Bytes) != len(have.Bytes) {
				rt.Fatalf("message %d byte length mismatch", i)
			}
			for j := range want.Bytes {
				if want.Bytes[j] != have.Bytes[j] {
					rt.Fatalf("message %d byte %d mismatch", i, j)
				}
			}
		}

		buf2, err := Encode(&Packet{MidiData: got.MidiData})
		if err != nil {
			rt.Fatalf("re-encode failed: %v", err)
		}
		if string(buf) != string(buf2) {
			rt.Fatalf("encode(decode(buf)) != buf")
		}
	})
}
