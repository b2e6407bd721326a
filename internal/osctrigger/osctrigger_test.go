package osctrigger

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeOSCMessage builds a minimal, argument-free OSC message packet:
// a null-terminated, 4-byte-aligned address string followed by a
// null-terminated, 4-byte-aligned empty type-tag string.
func encodeOSCMessage(t *testing.T, address string) []byte {
	t.Helper()
	pad := func(s string) []byte {
		b := append([]byte(s), 0)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		return b
	}
	out := pad(address)
	out = append(out, pad(",")...)
	return out
}

func freeUDPAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().(*net.UDPAddr)
	require.NoError(t, conn.Close())
	return addr
}

func send(t *testing.T, addr *net.UDPAddr, data []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func TestTriggerFiresOnMatchingAddress(t *testing.T) {
	addr := freeUDPAddr(t)
	fired := make(chan struct{}, 1)
	tr, err := New(addr, func() { fired <- struct{}{} }, WithLockout(0))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	send(t, addr, encodeOSCMessage(t, DefaultAddressPattern))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never fired")
	}
}

func TestTriggerIgnoresNonMatchingAddress(t *testing.T) {
	addr := freeUDPAddr(t)
	fired := make(chan struct{}, 1)
	tr, err := New(addr, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	send(t, addr, encodeOSCMessage(t, "/some/other/address"))

	select {
	case <-fired:
		t.Fatal("trigger fired on non-matching address")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTriggerRespectsLockout(t *testing.T) {
	addr := freeUDPAddr(t)
	var count int
	done := make(chan struct{}, 10)
	tr, err := New(addr, func() { count++; done <- struct{}{} }, WithLockout(time.Second))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	msg := encodeOSCMessage(t, DefaultAddressPattern)
	send(t, addr, msg)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first trigger never fired")
	}

	send(t, addr, msg)
	select {
	case <-done:
		t.Fatal("second trigger fired within lockout")
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, 1, count)
}

func TestTriggerRejectsDisallowedSource(t *testing.T) {
	addr := freeUDPAddr(t)
	fired := make(chan struct{}, 1)
	// Loopback traffic won't match a CIDR that excludes 127.0.0.0/8.
	tr, err := New(addr, func() { fired <- struct{}{} }, WithAllowedCIDRs([]string{"10.0.0.0/8"}))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	send(t, addr, encodeOSCMessage(t, DefaultAddressPattern))

	select {
	case <-fired:
		t.Fatal("trigger fired from a disallowed source")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddressMatchesWildcard(t *testing.T) {
	assert.True(t, addressMatches("/midinet/failover/*", "/midinet/failover/switch"))
	assert.False(t, addressMatches("/midinet/failover/*", "/midinet/other/switch"))
	assert.True(t, addressMatches(DefaultAddressPattern, DefaultAddressPattern))
}
