// Package host implements the broadcaster half of a MIDInet host: it owns
// the primary/standby multicast sockets, batches ingress MIDI into
// MidiDataPackets, and drives the heartbeat and identity-beacon cadences
// that let clients discover and fail over between streams.
package host

import (
	"net"
	"strconv"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// Default multicast groups and ports, per the wire-format table: data and
// heartbeat live on the per-stream group, identity and focus on the
// shared control group.
const (
	DefaultPrimaryGroup = "239.69.83.1"
	DefaultStandbyGroup = "239.69.83.2"
	DefaultControlGroup = "239.69.83.100"

	DefaultDataPort      = 5004
	DefaultHeartbeatPort = 5005
	DefaultIdentityPort  = 5006
	DefaultFocusPort     = 5007
)

// Defaults for the broadcaster's internal cadences.
const (
	DefaultBatchWindow       = 500 * time.Microsecond
	DefaultHeartbeatInterval = 3 * time.Millisecond
	DefaultIdentityInterval  = 5 * time.Second
	// PeerHeartbeatTimeout bounds how stale the sibling host's last
	// observed heartbeat may be before standby_healthy flips to false.
	PeerHeartbeatTimeout = 4 * DefaultHeartbeatInterval
)

// StreamEndpoints addresses one multicast stream (primary or standby):
// the data group:port pair and the heartbeat group:port pair.
type StreamEndpoints struct {
	Data      *net.UDPAddr
	Heartbeat *net.UDPAddr
}

// Config configures a Broadcaster. Addrs default to the MIDInet-assigned
// multicast groups above; tests substitute loopback unicast addresses
// since multicast group membership is commonly blocked in CI sandboxes.
type Config struct {
	HostID uint16
	// Epoch must be bumped by the caller on every process restart; the
	// broadcaster has no persistence of its own.
	Epoch uint32

	Own StreamEndpoints // this process's stream (primary xor standby)
	// Peer is the sibling host's heartbeat address, observed to derive
	// HeartbeatPacket.StandbyHealthy.
	Peer *net.UDPAddr
	// StreamID identifies Own's stream; it is stamped on every data and
	// heartbeat packet this broadcaster sends.
	StreamID wire.StreamID

	Control  *net.UDPAddr // identity + focus, shared by both hosts
	Identity wire.IdentityPacket

	BatchWindow       time.Duration
	HeartbeatInterval time.Duration
	IdentityInterval  time.Duration

	// Interface restricts multicast send/receive to one NIC. Nil means
	// the platform default (fine for loopback tests).
	Interface *net.Interface
}

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.BatchWindow <= 0 {
		cp.BatchWindow = DefaultBatchWindow
	}
	if cp.HeartbeatInterval <= 0 {
		cp.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cp.IdentityInterval <= 0 {
		cp.IdentityInterval = DefaultIdentityInterval
	}
	return &cp
}

func mustResolveUDP(host string, port int) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		panic(err) // only called with the package's own constant defaults
	}
	return addr
}

// PrimaryEndpoints returns the default primary-stream data/heartbeat
// addresses.
func PrimaryEndpoints() StreamEndpoints {
	return StreamEndpoints{
		Data:      mustResolveUDP(DefaultPrimaryGroup, DefaultDataPort),
		Heartbeat: mustResolveUDP(DefaultPrimaryGroup, DefaultHeartbeatPort),
	}
}

// StandbyEndpoints returns the default standby-stream data/heartbeat
// addresses.
func StandbyEndpoints() StreamEndpoints {
	return StreamEndpoints{
		Data:      mustResolveUDP(DefaultStandbyGroup, DefaultDataPort),
		Heartbeat: mustResolveUDP(DefaultStandbyGroup, DefaultHeartbeatPort),
	}
}

// DefaultControlAddr returns the shared control-group identity address.
func DefaultControlAddr() *net.UDPAddr {
	return mustResolveUDP(DefaultControlGroup, DefaultIdentityPort)
}

// DefaultFocusAddr returns the shared control-group focus address —
// same multicast group as identity, distinct port per the wire-format
// table, so internal/focus's Arbiter/Claimant bind independently of the
// broadcaster's own identity beacon socket.
func DefaultFocusAddr() *net.UDPAddr {
	return mustResolveUDP(DefaultControlGroup, DefaultFocusPort)
}
