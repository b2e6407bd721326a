//go:build linux

// Package mcast provides the UDP socket primitives internal/host and
// internal/client both build on: a send socket with TTL=1 and multicast
// loopback disabled, and a SO_REUSEPORT receive socket that joins a
// multicast group when given one. Sharing this package keeps the two
// components' socket handling identical rather than duplicated.
package mcast

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// OpenSend opens a UDP socket used to transmit to a multicast (or, in
// tests, loopback unicast) destination. TTL=1 and loopback delivery are
// disabled per spec.md §4.7; direwolf's SDR UDP input (src/audio.go) only
// ever receives plain unicast, so this is the one place this module reaches
// past net.UDPConn into raw socket options, via the same
// golang.org/x/sys/unix package rtpriority uses for SCHED_FIFO.
func OpenSend(group *net.UDPAddr) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	if group.IP != nil && group.IP.IsMulticast() {
		if err := setMulticastSendOpts(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// OpenRecv opens a UDP socket bound to addr's port with SO_REUSEPORT,
// joining addr's multicast group on iface if addr carries one. Multiple
// listeners (sibling hosts, or several client-side components) can then
// share the same port.
func OpenRecv(addr *net.UDPAddr, iface *net.Interface) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(addr.Port)))
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	if addr.IP != nil && addr.IP.IsMulticast() {
		if err := joinMulticastGroup(conn, addr.IP, iface); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func reusePortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func setMulticastSendOpts(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptByte(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptByte(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, 0)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func joinMulticastGroup(conn *net.UDPConn, group net.IP, iface *net.Interface) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], group.To4())
	if iface != nil {
		if addrs, aerr := iface.Addrs(); aerr == nil {
			for _, a := range addrs {
				if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
					copy(mreq.Address[:], ipn.IP.To4())
					break
				}
			}
		}
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	})
	if err != nil {
		return err
	}
	return sockErr
}
