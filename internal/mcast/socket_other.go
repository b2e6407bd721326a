//go:build !linux

package mcast

import "net"

// OpenSend is the non-Linux fallback: TTL and loopback suppression are
// left at OS defaults since SO_REUSEPORT-style raw socket options aren't
// portably available outside Linux's golang.org/x/sys/unix path.
func OpenSend(group *net.UDPAddr) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// OpenRecv falls back to net.ListenMulticastUDP, which works without
// SO_REUSEPORT as long as only one process on the host binds the port —
// true for the single-stream-per-host deployment model, false only for
// same-host dual-stream integration tests, which are Linux-only for that
// reason.
func OpenRecv(addr *net.UDPAddr, iface *net.Interface) (*net.UDPConn, error) {
	if addr.IP != nil && addr.IP.IsMulticast() {
		return net.ListenMulticastUDP("udp4", iface, addr)
	}
	return net.ListenUDP("udp4", addr)
}
