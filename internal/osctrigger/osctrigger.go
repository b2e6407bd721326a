// Package osctrigger implements the OSC failover trigger (spec.md
// §4.12): a UDP listener that accepts one configured OSC address
// pattern from an allow-listed set of source CIDRs and rate-limits
// accepted triggers to one per lockout period, forwarding each accepted
// trigger into the same manual-failover path the status API uses.
package osctrigger

import (
	"context"
	"fmt"
	"net"
	"path"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"

	"github.com/hakolsound/midinet/internal/logging"
)

// DefaultAddressPattern is the OSC address spec.md §4.12 triggers on
// absent explicit configuration.
const DefaultAddressPattern = "/midinet/failover/switch"

// DefaultLockout bounds how often an accepted trigger can fire again.
const DefaultLockout = 2 * time.Second

// Option configures a Trigger at construction.
type Option func(*Trigger)

// WithAddressPattern overrides DefaultAddressPattern. Patterns may use
// path.Match-style wildcards (e.g. "/midinet/failover/*").
func WithAddressPattern(pattern string) Option {
	return func(t *Trigger) { t.pattern = pattern }
}

// WithAllowedCIDRs restricts accepted packets to the given source
// networks. An empty list (the default) allows any source.
func WithAllowedCIDRs(cidrs []string) Option {
	return func(t *Trigger) { t.allowedCIDRs = cidrs }
}

// WithLockout overrides DefaultLockout.
func WithLockout(d time.Duration) Option {
	return func(t *Trigger) { t.lockout = d }
}

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Trigger) { t.logger = logger }
}

// Trigger listens for OSC failover-switch messages and invokes onTrigger
// at most once per lockout period, after matching the configured address
// pattern and source allow-list.
type Trigger struct {
	conn    *net.UDPConn
	pattern string

	allowedCIDRs []string
	allowed      []*net.IPNet

	lockout   time.Duration
	onTrigger func()
	logger    *log.Logger

	mu           sync.Mutex
	lastAccepted time.Time

	closeOnce sync.Once
}

// New opens a UDP listener on listenAddr and returns a Trigger ready for
// Run. onTrigger is invoked (from Run's goroutine) for every packet that
// passes the address, source, and lockout checks.
func New(listenAddr *net.UDPAddr, onTrigger func(), opts ...Option) (*Trigger, error) {
	t := &Trigger{
		pattern:   DefaultAddressPattern,
		lockout:   DefaultLockout,
		onTrigger: onTrigger,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.New(logging.Options{Component: "osctrigger"})
	}

	for _, cidr := range t.allowedCIDRs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("osctrigger: invalid allowed CIDR %q: %w", cidr, err)
		}
		t.allowed = append(t.allowed, ipnet)
	}

	conn, err := net.ListenUDP("udp4", listenAddr)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return t, nil
}

// Close releases the listener socket. Safe to call more than once.
func (t *Trigger) Close() error {
	t.closeOnce.Do(func() { t.conn.Close() })
	return nil
}

// Run reads OSC packets until ctx is cancelled, dispatching accepted
// failover triggers to onTrigger.
func (t *Trigger) Run(ctx context.Context) error {
	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		t.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		t.handle(buf[:n], raddr, time.Now())
	}
}

func (t *Trigger) handle(data []byte, raddr *net.UDPAddr, now time.Time) {
	if !t.sourceAllowed(raddr) {
		t.logger.Debug("rejected OSC packet from disallowed source", "addr", raddr)
		return
	}

	pkt, err := osc.ParsePacket(string(data))
	if err != nil {
		t.logger.Debug("dropped unparseable OSC packet", "err", err)
		return
	}
	msg, ok := pkt.(*osc.Message)
	if !ok {
		return // bundles aren't a recognised trigger shape
	}
	if !addressMatches(t.pattern, msg.Address) {
		return
	}

	t.mu.Lock()
	accept := t.lastAccepted.IsZero() || now.Sub(t.lastAccepted) >= t.lockout
	if accept {
		t.lastAccepted = now
	}
	t.mu.Unlock()

	if !accept {
		t.logger.Debug("OSC failover trigger suppressed by lockout", "addr", msg.Address)
		return
	}

	t.logger.Info("OSC failover trigger accepted", "addr", msg.Address, "source", raddr)
	if t.onTrigger != nil {
		t.onTrigger()
	}
}

func (t *Trigger) sourceAllowed(raddr *net.UDPAddr) bool {
	if len(t.allowed) == 0 {
		return true
	}
	for _, ipnet := range t.allowed {
		if ipnet.Contains(raddr.IP) {
			return true
		}
	}
	return false
}

func addressMatches(pattern, addr string) bool {
	if pattern == addr {
		return true
	}
	ok, err := path.Match(pattern, addr)
	return err == nil && ok
}
