// Package discovery implements mDNS/DNS-SD advertisement (host side) and
// continuous browsing (client side) of MIDInet hosts, per spec.md §4.6.
// Liveness reported here is advisory only: heartbeat presence on the
// data-plane sockets remains the authoritative signal.
package discovery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/brutella/dnssd"
)

// ServiceType is the DNS-SD service type MIDInet hosts advertise under.
const ServiceType = "_midinet._udp"

// Announcement is the TXT-record payload a host publishes: spec.md §4.6's
// {host_id, role, multicast_group, data_port, hb_port, epoch, device_name}.
type Announcement struct {
	HostID         uint16
	Role           string
	MulticastGroup string
	DataPort       int
	HeartbeatPort  int
	Epoch          uint32
	DeviceName     string
}

func (a Announcement) txt() map[string]string {
	return map[string]string{
		"host_id":         strconv.Itoa(int(a.HostID)),
		"role":            a.Role,
		"multicast_group": a.MulticastGroup,
		"data_port":       strconv.Itoa(a.DataPort),
		"hb_port":         strconv.Itoa(a.HeartbeatPort),
		"epoch":           strconv.FormatUint(uint64(a.Epoch), 10),
		"device_name":     a.DeviceName,
	}
}

// Advertiser announces one Announcement over mDNS until its context is
// canceled.
type Advertiser struct {
	responder dnssd.Responder
}

// Advertise registers ann under ServiceType and starts responding to
// queries in the background. Callers should cancel ctx to withdraw the
// announcement on shutdown.
func Advertise(ctx context.Context, ann Announcement, name string) (*Advertiser, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: ann.DataPort,
		Text: ann.txt(),
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: new service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: new responder: %w", err)
	}
	if _, err := rp.Add(svc); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	adv := &Advertiser{responder: rp}
	go func() {
		_ = rp.Respond(ctx) // returns when ctx is canceled; caller owns lifetime
	}()
	return adv, nil
}
