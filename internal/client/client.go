package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/mcast"
	"github.com/hakolsound/midinet/internal/wire"
)

// Monitor is the client-side counterpart to internal/host.Broadcaster: it
// subscribes to both multicast streams, tracks their health, forwards the
// active stream's messages to a MidiSink with jitter buffering and
// cross-stream dedup, and drives the failover state machine when the
// active stream goes quiet.
type Monitor struct {
	cfg    *Config
	sink   MidiSink
	logger *log.Logger

	primary *streamReceiver
	standby *streamReceiver

	controlConn *net.UDPConn

	dedup *dedupTable
	// sysexReassemblers holds one SysExReassembler per stream ID, since
	// each broadcaster stream mints its own sysex_id sequence
	// (internal/wire.SplitSysEx).
	sysexReassemblers [2]*wire.SysExReassembler

	mu             sync.Mutex
	state          FailoverState
	active         wire.StreamID
	jitter         *jitterBuffer
	lastSwitch     time.Time
	lastANO        time.Time
	epoch          uint32
	lastAppliedSeq uint32

	switchCount atomic.Uint64
}

// New builds a Monitor with its sockets open and ready for Run. It
// subscribes as the primary stream active by default; if the primary
// never produces heartbeats but the standby does, the first evaluate
// tick switches over on its own.
func New(cfg Config, sink MidiSink, logger *log.Logger) (*Monitor, error) {
	full := cfg.withDefaults()
	if logger == nil {
		logger = logging.New(logging.Options{Component: "client"})
	}

	recvLogger := logger.With("component", "client")

	primary, err := newStreamReceiver(wire.StreamPrimary, full.Primary, full.Interface, recvLogger)
	if err != nil {
		return nil, err
	}
	standby, err := newStreamReceiver(wire.StreamStandby, full.Standby, full.Interface, recvLogger)
	if err != nil {
		primary.Close()
		return nil, err
	}
	controlConn, err := mcast.OpenRecv(full.Control, full.Interface)
	if err != nil {
		primary.Close()
		standby.Close()
		return nil, err
	}

	m := &Monitor{
		cfg:         full,
		sink:        sink,
		logger:      logger.With("component", "client"),
		primary:     primary,
		standby:     standby,
		controlConn: controlConn,
		dedup:       newDedupTable(full.DedupWindow),
		state:       StateHealthy,
		active:      wire.StreamPrimary,
		jitter:      newJitterBuffer(full.JitterBuffer),
		sysexReassemblers: [2]*wire.SysExReassembler{
			wire.NewSysExReassembler(),
			wire.NewSysExReassembler(),
		},
	}
	primary.onData = m.handleData
	standby.onData = m.handleData
	return m, nil
}

// Run drives both stream receivers and the failover evaluation loop
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.primary.run(ctx) })
	g.Go(func() error { return m.standby.run(ctx) })
	g.Go(func() error { return m.evaluateLoop(ctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Close releases the control socket. The two stream receivers close
// themselves when Run's goroutines return.
func (m *Monitor) Close() error {
	return m.controlConn.Close()
}

// Active reports which stream is currently being forwarded.
func (m *Monitor) Active() wire.StreamID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// State reports the current failover state machine state.
func (m *Monitor) State() FailoverState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SwitchStats reports how many times switchActive has moved the active
// stream, and when it last did so, for status.Snapshot.
func (m *Monitor) SwitchStats() (uint64, time.Time) {
	m.mu.Lock()
	last := m.lastSwitch
	m.mu.Unlock()
	return m.switchCount.Load(), last
}

// StreamMetrics reports each stream's received-packet rate and loss
// percentage since its first packet, keyed by stream name ("primary",
// "standby") per status.Snapshot's convention.
func (m *Monitor) StreamMetrics() (rxRate, lossPercent map[string]float64) {
	rxRate = make(map[string]float64, 2)
	lossPercent = make(map[string]float64, 2)
	for name, snap := range map[string]streamSnapshot{
		"primary": m.primary.state.snapshot(),
		"standby": m.standby.state.snapshot(),
	} {
		rxRate[name] = streamRxRate(snap)
		lossPercent[name] = streamLossPercent(snap)
	}
	return rxRate, lossPercent
}

func streamRxRate(snap streamSnapshot) float64 {
	if snap.firstDataRx.IsZero() || snap.lastDataRx.Before(snap.firstDataRx) {
		return 0
	}
	elapsed := snap.lastDataRx.Sub(snap.firstDataRx).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(snap.rxCount) / elapsed
}

func streamLossPercent(snap streamSnapshot) float64 {
	total := snap.rxCount + snap.dropCount
	if total == 0 {
		return 0
	}
	return float64(snap.dropCount) / float64(total) * 100
}

// TriggerFailover requests an immediate manual switch to the currently
// inactive stream (spec.md §6.3 trigger_failover()), going through the
// same switchActive path (lockout, ANO, journal reconcile) the automatic
// heartbeat-timeout evaluator uses.
func (m *Monitor) TriggerFailover(ctx context.Context) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	to := wire.StreamStandby
	if active == wire.StreamStandby {
		to = wire.StreamPrimary
	}
	m.switchActive(ctx, to, time.Now(), "manual trigger_failover")
}

// handleData is the streamReceiver callback for both streams: only the
// currently active stream's packets are pushed through the jitter buffer
// and forwarded; the other stream's traffic is observed (streamState
// tracks its drop rate and last-seen time) but never written to the sink.
func (m *Monitor) handleData(id wire.StreamID, pkt *wire.MidiDataPacket, now time.Time) {
	m.mu.Lock()
	active := m.active
	jb := m.jitter
	m.mu.Unlock()
	if id != active {
		return
	}
	for _, ready := range jb.Push(pkt, now) {
		m.forwardPacket(ready, now)
	}
}

func (m *Monitor) forwardPacket(pkt *wire.MidiDataPacket, now time.Time) {
	if pkt.IsSysExFragment() {
		m.forwardSysExFragment(pkt, now)
		return
	}
	for _, msg := range pkt.Messages {
		if m.dedup.Seen(msg, now) {
			continue
		}
		if err := m.sink.Write(msg); err != nil {
			m.logger.Warn("sink write failed", "err", err)
		}
	}
	m.mu.Lock()
	m.epoch = pkt.Epoch
	m.lastAppliedSeq = pkt.Seq
	m.mu.Unlock()
}

// forwardSysExFragment feeds a SysEx fragment through the reassembler for
// its stream, forwarding the reconstructed message once every fragment
// of its sysex_id has arrived (spec.md §4.1).
func (m *Monitor) forwardSysExFragment(pkt *wire.MidiDataPacket, now time.Time) {
	payload, complete := m.sysexReassemblers[pkt.StreamID].Accept(pkt)
	if complete {
		msg := wire.MidiMessage{Kind: wire.SysEx, Bytes: payload, TimestampNS: uint64(now.UnixNano())}
		if !m.dedup.Seen(msg, now) {
			if err := m.sink.Write(msg); err != nil {
				m.logger.Warn("sink write failed", "err", err)
			}
		}
	}
	m.mu.Lock()
	m.epoch = pkt.Epoch
	m.lastAppliedSeq = pkt.Seq
	m.mu.Unlock()
}
