package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/brutella/dnssd"
)

// Host is a coalesced view of one discovered MIDInet host: the latest
// browse entry for that host_id, regardless of which interface or IP
// family it was seen on.
type Host struct {
	HostID         uint16
	Role           string
	MulticastGroup string
	DataPort       int
	HeartbeatPort  int
	Epoch          uint32
	DeviceName     string
	Addrs          []net.IP
}

// Browser continuously browses ServiceType and coalesces updates per
// host_id, per spec.md §4.6 ("Clients browse continuously, coalescing
// updates per host").
type Browser struct {
	mu    sync.RWMutex
	hosts map[uint16]Host
}

// NewBrowser starts browsing in the background and returns immediately.
// Cancel ctx to stop.
func NewBrowser(ctx context.Context) (*Browser, error) {
	b := &Browser{hosts: make(map[uint16]Host)}

	go func() {
		_ = dnssd.LookupType(ctx, ServiceType+".local.", b.added, b.removed)
	}()

	return b, nil
}

func (b *Browser) added(e dnssd.BrowseEntry) {
	h, ok := parseEntry(e)
	if !ok {
		return
	}
	b.mu.Lock()
	b.hosts[h.HostID] = h
	b.mu.Unlock()
}

func (b *Browser) removed(e dnssd.BrowseEntry) {
	h, ok := parseEntry(e)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.hosts, h.HostID)
	b.mu.Unlock()
}

func parseEntry(e dnssd.BrowseEntry) (Host, bool) {
	hostIDStr, ok := e.Text["host_id"]
	if !ok {
		return Host{}, false
	}
	hostID, err := strconv.ParseUint(hostIDStr, 10, 16)
	if err != nil {
		return Host{}, false
	}
	epoch, _ := strconv.ParseUint(e.Text["epoch"], 10, 32)
	dataPort, _ := strconv.Atoi(e.Text["data_port"])
	hbPort, _ := strconv.Atoi(e.Text["hb_port"])

	return Host{
		HostID:         uint16(hostID),
		Role:           e.Text["role"],
		MulticastGroup: e.Text["multicast_group"],
		DataPort:       dataPort,
		HeartbeatPort:  hbPort,
		Epoch:          uint32(epoch),
		DeviceName:     e.Text["device_name"],
		Addrs:          e.IPs,
	}, true
}

// Hosts returns a snapshot of every currently known host, keyed by host_id.
func (b *Browser) Hosts() map[uint16]Host {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[uint16]Host, len(b.hosts))
	for k, v := range b.hosts {
		out[k] = v
	}
	return out
}
