package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hakolsound/midinet/internal/mcast"
	"github.com/hakolsound/midinet/internal/wire"
)

// streamState tracks what a Monitor has observed of one stream (primary or
// standby): the running sequence/epoch it last saw, when data and
// heartbeat packets last arrived, and a rolling drop counter. Reads and
// writes go through the stream's own mutex; the monitor polls a
// consistent snapshot via snapshot().
type streamState struct {
	mu sync.Mutex

	lastSeq     uint32
	haveSeq     bool
	epoch       uint32
	lastDataRx  time.Time
	lastHBRx    time.Time
	standbyOK   bool
	inputActive uint8
	dropCount   uint64
	rxCount     uint64
	firstDataRx time.Time
	// parseErrors counts Decode failures on this stream's sockets,
	// surfaced into status.Snapshot alongside dropCount.
	parseErrors atomic.Uint64
}

type streamSnapshot struct {
	lastDataRx  time.Time
	lastHBRx    time.Time
	dropCount   uint64
	rxCount     uint64
	firstDataRx time.Time
	parseErrors uint64
}

func (s *streamState) snapshot() streamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return streamSnapshot{
		lastDataRx:  s.lastDataRx,
		lastHBRx:    s.lastHBRx,
		dropCount:   s.dropCount,
		rxCount:     s.rxCount,
		firstDataRx: s.firstDataRx,
		parseErrors: s.parseErrors.Load(),
	}
}

func (s *streamState) observeData(pkt *wire.MidiDataPacket, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.haveSeq, pkt.Seq == s.lastSeq+1:
		// first packet, or the expected next seq: nothing to count.
	case seqBefore(pkt.Seq, s.lastSeq):
		// regressed rather than advanced: either a stale duplicate, or the
		// host restarted its sequence space. wire's wraparound convention
		// says to reinitialise the cursor, not to treat this as loss.
	default:
		s.dropCount += uint64(pkt.Seq - s.lastSeq - 1)
	}
	s.lastSeq = pkt.Seq
	s.haveSeq = true
	s.epoch = pkt.Epoch
	if s.firstDataRx.IsZero() {
		s.firstDataRx = now
	}
	s.rxCount++
	s.lastDataRx = now
}

// observeParseError records a Decode failure on this stream's data or
// heartbeat socket. Unlike dropCount (a sequence gap on an otherwise
// well-formed packet), this counts packets that never decoded at all.
func (s *streamState) observeParseError() {
	s.parseErrors.Add(1)
}

func (s *streamState) observeHeartbeat(pkt *wire.HeartbeatPacket, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = pkt.Epoch
	s.lastHBRx = now
	s.standbyOK = pkt.StandbyHealthy
	s.inputActive = pkt.InputActive
}

// streamReceiver owns one stream's data and heartbeat sockets and feeds
// decoded packets to the Monitor's per-stream callbacks.
type streamReceiver struct {
	id     wire.StreamID
	addrs  StreamAddrs
	state  *streamState
	logger *log.Logger

	dataConn *net.UDPConn
	hbConn   *net.UDPConn

	onData      func(wire.StreamID, *wire.MidiDataPacket, time.Time)
	onHeartbeat func(wire.StreamID, *wire.HeartbeatPacket, time.Time)
}

func newStreamReceiver(id wire.StreamID, addrs StreamAddrs, iface *net.Interface, logger *log.Logger) (*streamReceiver, error) {
	dataConn, err := mcast.OpenRecv(addrs.Data, iface)
	if err != nil {
		return nil, err
	}
	hbConn, err := mcast.OpenRecv(addrs.Heartbeat, iface)
	if err != nil {
		dataConn.Close()
		return nil, err
	}
	return &streamReceiver{
		id:       id,
		addrs:    addrs,
		state:    &streamState{},
		logger:   logger,
		dataConn: dataConn,
		hbConn:   hbConn,
	}, nil
}

func (r *streamReceiver) Close() error {
	r.dataConn.Close()
	r.hbConn.Close()
	return nil
}

// run drives both of the stream's read loops until ctx is cancelled.
func (r *streamReceiver) run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- r.readDataLoop(ctx) }()
	go func() { errCh <- r.readHeartbeatLoop(ctx) }()

	err := <-errCh
	r.Close()
	<-errCh
	if err == context.Canceled {
		return nil
	}
	return err
}

func (r *streamReceiver) readDataLoop(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		r.dataConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := r.dataConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			r.state.observeParseError()
			r.logger.Debug("dropped unparseable data packet", "stream", r.id, "err", err)
			continue
		}
		if pkt.MidiData == nil {
			continue // a control-group kind delivered to the data socket; not ours
		}
		now := time.Now()
		r.state.observeData(pkt.MidiData, now)
		if r.onData != nil {
			r.onData(r.id, pkt.MidiData, now)
		}
	}
}

func (r *streamReceiver) readHeartbeatLoop(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		r.hbConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := r.hbConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			r.state.observeParseError()
			r.logger.Debug("dropped unparseable heartbeat packet", "stream", r.id, "err", err)
			continue
		}
		if pkt.Heartbeat == nil {
			continue
		}
		now := time.Now()
		r.state.observeHeartbeat(pkt.Heartbeat, now)
		if r.onHeartbeat != nil {
			r.onHeartbeat(r.id, pkt.Heartbeat, now)
		}
	}
}
