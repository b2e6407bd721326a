// Package wire implements the MIDInet binary packet format: the fixed
// 8-byte header, the kind-specific bodies, and the CRC16-CCITT trailer
// that closes every packet on the wire.
package wire

import "fmt"

// Kind identifies the body format following the fixed header.
type Kind uint8

const (
	KindMidiData Kind = iota + 1
	KindHeartbeat
	KindIdentity
	KindFocus
	KindJournalQuery
	KindJournalReply
	KindFeedbackData
)

// Magic is the two-byte marker every MIDInet packet starts with.
const Magic = "MN"

// Version is the wire format version this package encodes and accepts.
const Version uint8 = 1

// MTULimit is the maximum encoded packet size, chosen to stay clear of
// IPv4 fragmentation on ordinary network paths.
const MTULimit = 1200

// headerLen is the size in bytes of the fixed header.
const headerLen = 8

// Flags carried in the fixed header.
type Flags uint16

const (
	// FlagTerminating marks the final heartbeat emitted during shutdown.
	FlagTerminating Flags = 1 << 0
	// FlagSysExFragment marks a MIDI-data packet carrying a SysEx fragment
	// rather than whole messages.
	FlagSysExFragment Flags = 1 << 1
)

// StreamID distinguishes the primary and standby multicast streams.
type StreamID uint8

const (
	StreamPrimary StreamID = 0
	StreamStandby StreamID = 1
)

// PayloadTooLargeError is returned by Encode when a packet would exceed
// MTULimit. The caller (the codec's SysEx framer) is responsible for
// splitting oversized bodies before calling Encode again.
type PayloadTooLargeError struct {
	Kind Kind
	Size int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("wire: encoded %s packet is %d bytes, exceeds MTU limit %d", e.Kind, e.Size, MTULimit)
}

// ParseErrorKind classifies why Decode rejected a buffer.
type ParseErrorKind int

const (
	BadMagic ParseErrorKind = iota
	UnsupportedVersion
	LengthMismatch
	ChecksumMismatch
	TruncatedBody
	UnknownKind
)

func (k ParseErrorKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case UnsupportedVersion:
		return "unsupported version"
	case LengthMismatch:
		return "length mismatch"
	case ChecksumMismatch:
		return "checksum mismatch"
	case TruncatedBody:
		return "truncated body"
	case UnknownKind:
		return "unknown kind"
	default:
		return "unknown parse error"
	}
}

// ParseError is returned by Decode. UnknownKind is tolerated by callers:
// the codec still parses and the receiver only drops the packet with a
// counter increment, keeping the wire format forward-compatible.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Msg == "" {
		return "wire: " + e.Kind.String()
	}
	return fmt.Sprintf("wire: %s: %s", e.Kind, e.Msg)
}

func (k Kind) String() string {
	switch k {
	case KindMidiData:
		return "MidiData"
	case KindHeartbeat:
		return "Heartbeat"
	case KindIdentity:
		return "Identity"
	case KindFocus:
		return "Focus"
	case KindJournalQuery:
		return "JournalQuery"
	case KindJournalReply:
		return "JournalReply"
	case KindFeedbackData:
		return "FeedbackData"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Packet is the decoded, typed form of any wire message. Exactly one of
// the pointer fields is non-nil, matching Header.Kind.
type Packet struct {
	Header       Header
	MidiData     *MidiDataPacket
	Heartbeat    *HeartbeatPacket
	Identity     *IdentityPacket
	Focus        *FocusPacket
	JournalQuery *JournalQueryPacket
	JournalReply *JournalReplyPacket
	Feedback     *FeedbackPacket
	// RawBody carries the undecoded body for an UnknownKind packet that
	// nonetheless passed magic/version/length/checksum validation.
	RawBody []byte
}

// Header is the fixed 8-byte preamble of every packet.
type Header struct {
	Version uint8
	Kind    Kind
	Length  uint16 // body length, not including header or trailing CRC
	Flags   Flags
}
