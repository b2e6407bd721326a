package host

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/hakolsound/midinet/internal/journal"
	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/mcast"
	"github.com/hakolsound/midinet/internal/midistate"
	"github.com/hakolsound/midinet/internal/ringbuf"
	"github.com/hakolsound/midinet/internal/wire"
)

// Broadcaster is the dual-socket owner spec.md §4.7 describes: it drains
// the ring buffer fed by the MIDI ingress thread into batched
// MidiDataPackets on its own multicast stream, emits heartbeats carrying
// its observation of the sibling host's health, and re-beacons its
// IdentityPacket on the shared control group.
//
// The input-redundancy controller and the broadcaster never share memory;
// SetInputActive is the only channel between them, matching the
// private-event-queue boundary SPEC_FULL.md draws between the two.
type Broadcaster struct {
	cfg    *Config
	ring   *ringbuf.Ring[wire.MidiMessage]
	logger *log.Logger

	sendData      *net.UDPConn
	sendHeartbeat *net.UDPConn
	sendControl   *net.UDPConn
	recvPeerHB    *net.UDPConn
	recvControl   *net.UDPConn

	dataSeq atomic.Uint32
	hbSeq   atomic.Uint32
	sysexID atomic.Uint32

	inputActive atomic.Bool

	peerMu      sync.Mutex
	peerLastRx  time.Time
	peerHealthy bool
	peerHBDrops atomic.Uint64

	// journal is the state journal a client's reconcile() round trip
	// queries after a stream switch (spec.md §4.3). stateMu guards the
	// running midistate.State the batcher folds every batch into before
	// handing it (and the batch) to journal.Record.
	journal *journal.StateJournal
	stateMu sync.Mutex
	state   midistate.State

	closeOnce sync.Once
}

// NewBroadcaster opens the broadcaster's sockets and returns a
// Broadcaster ready for Run. ring is the SPSC queue the real-time MIDI
// ingress thread pushes into; Run is its sole consumer.
func NewBroadcaster(cfg Config, ring *ringbuf.Ring[wire.MidiMessage], logger *log.Logger) (*Broadcaster, error) {
	full := cfg.withDefaults()
	if logger == nil {
		logger = logging.New(logging.Options{Component: "host"})
	}

	sendData, err := mcast.OpenSend(full.Own.Data)
	if err != nil {
		return nil, err
	}
	sendHeartbeat, err := mcast.OpenSend(full.Own.Heartbeat)
	if err != nil {
		sendData.Close()
		return nil, err
	}
	sendControl, err := mcast.OpenSend(full.Control)
	if err != nil {
		sendData.Close()
		sendHeartbeat.Close()
		return nil, err
	}

	var recvPeerHB *net.UDPConn
	if full.Peer != nil {
		recvPeerHB, err = mcast.OpenRecv(full.Peer, full.Interface)
		if err != nil {
			sendData.Close()
			sendHeartbeat.Close()
			sendControl.Close()
			return nil, err
		}
	}

	// recvControl answers JournalQueryPackets regardless of whether this
	// host is paired with a sibling, since a client can reconcile against
	// either stream independently.
	recvControl, err := mcast.OpenRecv(full.Control, full.Interface)
	if err != nil {
		sendData.Close()
		sendHeartbeat.Close()
		sendControl.Close()
		if recvPeerHB != nil {
			recvPeerHB.Close()
		}
		return nil, err
	}

	return &Broadcaster{
		cfg:           full,
		ring:          ring,
		logger:        logger.With("component", "host", "host_id", full.HostID),
		sendData:      sendData,
		sendHeartbeat: sendHeartbeat,
		sendControl:   sendControl,
		recvPeerHB:    recvPeerHB,
		recvControl:   recvControl,
		journal:       journal.New(full.Epoch, journal.DefaultCapacity),
		state:         midistate.NewState(),
	}, nil
}

// SetInputActive tells the broadcaster which physical input (0 primary,
// 1 backup) the input-redundancy controller currently has live; it is
// folded into every HeartbeatPacket's InputActive field.
func (b *Broadcaster) SetInputActive(active uint8) {
	b.inputActive.Store(active != 0)
}

// Run drives the batcher, heartbeat, identity, and peer-heartbeat-listener
// loops until ctx is cancelled. It returns the first loop's error other
// than context.Canceled.
func (b *Broadcaster) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.runBatcher(ctx) })
	g.Go(func() error { return b.runHeartbeat(ctx) })
	g.Go(func() error { return b.runIdentityBeacon(ctx) })
	g.Go(func() error { return b.runJournalResponder(ctx) })
	if b.recvPeerHB != nil {
		g.Go(func() error { return b.runPeerHeartbeatListener(ctx) })
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Close releases all sockets. Safe to call more than once.
func (b *Broadcaster) Close() error {
	b.closeOnce.Do(func() {
		b.sendData.Close()
		b.sendHeartbeat.Close()
		b.sendControl.Close()
		b.recvControl.Close()
		if b.recvPeerHB != nil {
			b.recvPeerHB.Close()
		}
	})
	return nil
}

func (b *Broadcaster) nextDataSeq() uint32 { return b.dataSeq.Add(1) - 1 }
func (b *Broadcaster) nextHBSeq() uint32   { return b.hbSeq.Add(1) - 1 }
func (b *Broadcaster) nextSysExID() uint16 { return uint16(b.sysexID.Add(1)) }

// PeerHeartbeatDrops reports the cumulative count of unparseable packets
// seen on the sibling heartbeat socket.
func (b *Broadcaster) PeerHeartbeatDrops() uint64 { return b.peerHBDrops.Load() }

// IngressLossPercent reports what fraction of ingress ring pushes since
// startup found the ring full, as a 0..100 percentage.
func (b *Broadcaster) IngressLossPercent() float64 {
	overflows := b.ring.Overflows()
	total := overflows + b.ring.Pushed()
	if total == 0 {
		return 0
	}
	return float64(overflows) / float64(total) * 100
}

// recordJournal folds batch into the broadcaster's running midistate and
// appends the reduced result to the journal, so a client's reconcile()
// after a stream switch can rehydrate held notes and controller state
// (spec.md §4.3).
func (b *Broadcaster) recordJournal(batch []wire.MidiMessage) {
	b.stateMu.Lock()
	b.state = midistate.ApplyAll(b.state, batch)
	state := b.state
	b.stateMu.Unlock()
	b.journal.Record(state, batch)
}

func (b *Broadcaster) peerHealthyNow() bool {
	b.peerMu.Lock()
	defer b.peerMu.Unlock()
	if b.peerLastRx.IsZero() {
		return false
	}
	return time.Since(b.peerLastRx) <= PeerHeartbeatTimeout
}

func (b *Broadcaster) observePeerHeartbeat() {
	b.peerMu.Lock()
	b.peerLastRx = time.Now()
	b.peerMu.Unlock()
}
