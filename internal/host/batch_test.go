package host

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/ringbuf"
	"github.com/hakolsound/midinet/internal/wire"
)

// TestBroadcasterSplitsOversizedSysEx pushes a SysEx message too large for
// one MidiDataPacket and expects the batcher to fragment it via
// wire.SplitSysEx rather than reject the batch as oversized.
func TestBroadcasterSplitsOversizedSysEx(t *testing.T) {
	dataAddr := freeUDPAddr(t)
	hbAddr := freeUDPAddr(t)
	controlAddr := freeUDPAddr(t)

	ring := ringbuf.New[wire.MidiMessage](64)
	cfg := Config{
		HostID:      6,
		Epoch:       1,
		StreamID:    wire.StreamPrimary,
		Own:         StreamEndpoints{Data: dataAddr, Heartbeat: hbAddr},
		Control:     controlAddr,
		BatchWindow: time.Hour,
	}
	b, err := NewBroadcaster(cfg, ring, nil)
	require.NoError(t, err)
	defer b.Close()

	listener, err := net.ListenUDP("udp4", dataAddr)
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	payload := make([]byte, wire.MaxWholeSysExBytes()*2)
	for i := range payload {
		payload[i] = byte(i)
	}
	ring.Push(wire.MidiMessage{Kind: wire.SysEx, Bytes: payload})

	reassembler := wire.NewSysExReassembler()
	var got []byte
	require.Eventually(t, func() bool {
		buf := make([]byte, wire.MTULimit)
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			return false
		}
		pkt, err := wire.Decode(buf[:n])
		if err != nil || pkt.MidiData == nil {
			return false
		}
		var done bool
		got, done = reassembler.Accept(pkt.MidiData)
		return done
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, payload, got)
}
