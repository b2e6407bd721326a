package client

import (
	"net"
	"time"
)

// Defaults per spec.md §4.9.
const (
	DefaultMissThreshold     = 3
	DefaultHeartbeatInterval = 3 * time.Millisecond
	DefaultSwitchLockout     = 2 * time.Second
	DefaultDegradedANOPeriod = 2 * time.Second
	DefaultDedupWindow       = 50 * time.Millisecond
	DefaultJitterBufferWired = 0
	DefaultJitterBufferWiFi  = 2000 * time.Microsecond
	// darkThreshold is how long both streams may go without a heartbeat
	// before the monitor declares Degraded, independent of the
	// miss-threshold switch evaluation (spec.md §4.12's state-machine
	// note: "any state → Degraded if both streams dark > 50 ms").
	darkThreshold = 50 * time.Millisecond
)

// StreamAddrs addresses one stream's data and heartbeat multicast groups.
type StreamAddrs struct {
	Data      *net.UDPAddr
	Heartbeat *net.UDPAddr
}

// Config configures a Monitor.
type Config struct {
	Primary StreamAddrs
	Standby StreamAddrs
	Control *net.UDPAddr // identity, focus, journal query/reply

	MissThreshold     int
	HeartbeatInterval time.Duration
	SwitchLockout     time.Duration
	JitterBuffer      time.Duration
	DedupWindow       time.Duration

	Interface *net.Interface
}

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.MissThreshold <= 0 {
		cp.MissThreshold = DefaultMissThreshold
	}
	if cp.HeartbeatInterval <= 0 {
		cp.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cp.SwitchLockout <= 0 {
		cp.SwitchLockout = DefaultSwitchLockout
	}
	if cp.DedupWindow <= 0 {
		cp.DedupWindow = DefaultDedupWindow
	}
	return &cp
}

func (c *Config) missWindow() time.Duration {
	return time.Duration(c.MissThreshold) * c.HeartbeatInterval
}
