// Package focus implements the single-writer lease arbitration for
// client→host MIDI feedback (spec.md §4.11): at most one client's
// virtual-device input is ever forwarded back to the physical device,
// decided by a lease a client claims, renews, and releases over the
// control multicast group.
package focus

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hakolsound/midinet/internal/logging"
)

// Defaults per spec.md §4.11.
const (
	DefaultLeaseDuration = 10 * time.Second
	DefaultRenewInterval = 2500 * time.Millisecond
	defaultPollInterval  = 50 * time.Millisecond
	defaultClaimTimeout  = 500 * time.Millisecond
)

// NewClientID derives a wire-sized client identifier from a fresh UUID.
// ClientID on the wire is a uint64, not the UUID itself, so callers that
// need the full UUID for logging should keep it alongside this value.
func NewClientID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// Config configures both an Arbiter and a Claimant.
type Config struct {
	Control       *net.UDPAddr
	Interface     *net.Interface
	LeaseDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	return c
}

// grant is the arbiter's current view of who holds focus.
type grant struct {
	clientID   uint64
	leaseUntil time.Time
}

func (g grant) expired(now time.Time) bool {
	return g.leaseUntil.IsZero() || now.After(g.leaseUntil)
}

// newLogger returns logger, or a component-scoped default if nil.
func newLogger(logger *log.Logger, component string) *log.Logger {
	if logger == nil {
		logger = logging.New(logging.Options{Component: component})
	}
	return logger.With("component", component)
}
