package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/wire"
)

// fakeSink records every message written to it, safe for concurrent use
// by the monitor's receive goroutines.
type fakeSink struct {
	mu   sync.Mutex
	msgs []wire.MidiMessage
}

func (f *fakeSink) Write(msg wire.MidiMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSink) snapshot() []wire.MidiMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.MidiMessage, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeSink) has(kind wire.MessageKind) bool {
	for _, msg := range f.snapshot() {
		if msg.Kind == kind {
			return true
		}
	}
	return false
}

// startHeartbeatLoop sends a HeartbeatPacket on addr every millisecond
// until stop is closed, keeping a stream out of the dark/degraded path
// for the duration of a test.
func startHeartbeatLoop(t *testing.T, addr *net.UDPAddr, id wire.StreamID, stop chan struct{}) {
	t.Helper()
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sendPacket(t, addr, &wire.Packet{Heartbeat: &wire.HeartbeatPacket{StreamID: id}})
			}
		}
	}()
}

func freeAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().(*net.UDPAddr)
	require.NoError(t, conn.Close())
	return addr
}

func testConfig(t *testing.T) Config {
	return Config{
		Primary: StreamAddrs{Data: freeAddr(t), Heartbeat: freeAddr(t)},
		Standby: StreamAddrs{Data: freeAddr(t), Heartbeat: freeAddr(t)},
		Control: freeAddr(t),
	}
}

func sendPacket(t *testing.T, addr *net.UDPAddr, p *wire.Packet) {
	t.Helper()
	buf, err := wire.Encode(p)
	require.NoError(t, err)
	conn, err := net.DialUDP("udp4", nil, addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func TestMonitorForwardsActiveStreamData(t *testing.T) {
	cfg := testConfig(t)
	sink := &fakeSink{}
	m, err := New(cfg, sink, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Keep feeding primary heartbeats so the degraded/ANO path never
	// fires and muddies the forwarded-message assertion below.
	stopHB := make(chan struct{})
	defer close(stopHB)
	startHeartbeatLoop(t, cfg.Primary.Heartbeat, wire.StreamPrimary, stopHB)

	sendPacket(t, cfg.Primary.Data, &wire.Packet{MidiData: &wire.MidiDataPacket{
		StreamID: wire.StreamPrimary,
		Seq:      0,
		Messages: []wire.MidiMessage{{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{0x90, 60, 100}}},
	}})

	require.Eventually(t, func() bool { return sink.has(wire.NoteOn) }, 2*time.Second, 10*time.Millisecond)
}

func TestMonitorIgnoresStandbyDataWhilePrimaryActive(t *testing.T) {
	cfg := testConfig(t)
	sink := &fakeSink{}
	m, err := New(cfg, sink, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Keep the primary stream healthy so the active stream never changes
	// and the degraded/ANO path never fires.
	stopHB := make(chan struct{})
	defer close(stopHB)
	startHeartbeatLoop(t, cfg.Primary.Heartbeat, wire.StreamPrimary, stopHB)
	time.Sleep(20 * time.Millisecond) // let the first heartbeat land

	sendPacket(t, cfg.Standby.Data, &wire.Packet{MidiData: &wire.MidiDataPacket{
		StreamID: wire.StreamStandby,
		Seq:      0,
		Messages: []wire.MidiMessage{{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{0x90, 60, 100}}},
	}})

	time.Sleep(20 * time.Millisecond)
	assert.False(t, sink.has(wire.NoteOn))
}

func TestMonitorDeclaresDegradedWhenBothStreamsDark(t *testing.T) {
	cfg := testConfig(t)
	cfg.MissThreshold = 1
	cfg.HeartbeatInterval = time.Millisecond
	sink := &fakeSink{}
	m, err := New(cfg, sink, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool { return m.State() == StateDegraded }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 16 }, 2*time.Second, 10*time.Millisecond)

	msgs := sink.snapshot()
	for _, msg := range msgs[:16] {
		assert.Equal(t, wire.ControlChange, msg.Kind)
		assert.Equal(t, uint8(123), msg.Bytes[0])
	}
}

func TestMonitorSwitchesToHealthyStandbyOnPrimaryMiss(t *testing.T) {
	cfg := testConfig(t)
	cfg.MissThreshold = 2
	cfg.HeartbeatInterval = 2 * time.Millisecond
	cfg.SwitchLockout = time.Millisecond
	sink := &fakeSink{}
	m, err := New(cfg, sink, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Keep the standby stream's heartbeats flowing; the primary never
	// sends one, so it should miss threshold and the monitor should
	// switch over to the healthy standby.
	stopStandbyHB := make(chan struct{})
	defer close(stopStandbyHB)
	startHeartbeatLoop(t, cfg.Standby.Heartbeat, wire.StreamStandby, stopStandbyHB)

	require.Eventually(t, func() bool { return m.Active() == wire.StreamStandby }, 3*time.Second, 10*time.Millisecond)

	count, last := m.SwitchStats()
	assert.Equal(t, uint64(1), count)
	assert.False(t, last.IsZero())
}

func TestMonitorStreamMetricsReflectReceivedData(t *testing.T) {
	cfg := testConfig(t)
	sink := &fakeSink{}
	m, err := New(cfg, sink, nil)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	stopHB := make(chan struct{})
	defer close(stopHB)
	startHeartbeatLoop(t, cfg.Primary.Heartbeat, wire.StreamPrimary, stopHB)

	for seq := uint32(0); seq < 5; seq++ {
		sendPacket(t, cfg.Primary.Data, &wire.Packet{MidiData: &wire.MidiDataPacket{
			StreamID: wire.StreamPrimary,
			Seq:      seq,
			Messages: []wire.MidiMessage{{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{0x90, 60, 100}}},
		}})
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, lossPercent := m.StreamMetrics()
		return lossPercent["primary"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
