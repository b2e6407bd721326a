package focus

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

// freeMulticastAddr picks an unused port and pairs it with a multicast
// group: the Arbiter and every Claimant in a test bind the same control
// address, which only a real multicast join (rather than the SO_REUSEPORT
// unicast load-balancing a plain loopback address would get) delivers to
// every listener.
func freeMulticastAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return &net.UDPAddr{IP: net.IPv4(239, 7, 13, 99), Port: port}
}

func testConfig(t *testing.T) Config {
	return Config{Control: freeMulticastAddr(t), LeaseDuration: 100 * time.Millisecond}
}

func TestClaimantGetsGrantedWhenNoHolder(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	c, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer c.Close()
	go c.Listen(ctx)

	ok, err := c.Claim(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.Held())

	require.Eventually(t, func() bool {
		holder, has := a.Holder()
		return has && holder == c.ClientID()
	}, time.Second, 5*time.Millisecond)
}

func TestSecondClaimantDeniedWithoutPreempt(t *testing.T) {
	cfg := testConfig(t)
	cfg.LeaseDuration = 5 * time.Second
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	first, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer first.Close()
	go first.Listen(ctx)
	ok, err := first.Claim(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer second.Close()
	go second.Listen(ctx)
	ok, err = second.Claim(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, second.Held())

	holder, has := a.Holder()
	require.True(t, has)
	assert.Equal(t, first.ClientID(), holder)
}

func TestSecondClaimantGrantedWithPreempt(t *testing.T) {
	cfg := testConfig(t)
	cfg.LeaseDuration = 5 * time.Second
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	first, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer first.Close()
	go first.Listen(ctx)
	ok, err := first.Claim(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer second.Close()
	go second.Listen(ctx)
	ok, err = second.Claim(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, has := a.Holder()
	require.True(t, has)
	assert.Equal(t, second.ClientID(), holder)
}

func TestHolderLeaseExpiresAndIsReclaimable(t *testing.T) {
	cfg := testConfig(t) // 100ms lease
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	first, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer first.Close()
	go first.Listen(ctx)
	ok, err := first.Claim(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// First claimant never renews; wait past its lease.
	time.Sleep(200 * time.Millisecond)

	second, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer second.Close()
	go second.Listen(ctx)
	ok, err = second.Claim(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArbiterAcceptOnlyMatchesHolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.LeaseDuration = 5 * time.Second
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	c, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer c.Close()
	go c.Listen(ctx)
	ok, err := c.Claim(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool { return a.Accept(c.ClientID()) }, time.Second, 5*time.Millisecond)
	assert.False(t, a.Accept(c.ClientID()+1))
}

// feedbackSink records every batch handed to it, safe for concurrent use
// by the arbiter's Run goroutine.
type feedbackSink struct {
	mu    sync.Mutex
	calls [][]wire.MidiMessage
}

func (s *feedbackSink) accept(msgs []wire.MidiMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msgs)
}

func (s *feedbackSink) snapshot() [][]wire.MidiMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]wire.MidiMessage, len(s.calls))
	copy(out, s.calls)
	return out
}

func TestArbiterRelaysFeedbackOnlyFromHolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.LeaseDuration = 5 * time.Second
	a, err := NewArbiter(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	sink := &feedbackSink{}
	a.SetFeedbackSink(sink.accept)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	holder, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer holder.Close()
	go holder.Listen(ctx)
	ok, err := holder.Claim(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	nonHolder, err := NewClaimant(cfg, NewClientID(), nil)
	require.NoError(t, err)
	defer nonHolder.Close()
	go nonHolder.Listen(ctx)

	want := []wire.MidiMessage{{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{60, 100}}}
	require.NoError(t, nonHolder.SendFeedback(want))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())

	require.NoError(t, holder.SendFeedback(want))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.snapshot()[0])
}
