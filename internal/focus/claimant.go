package focus

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hakolsound/midinet/internal/mcast"
	"github.com/hakolsound/midinet/internal/wire"
)

// Claimant is the client-side half of focus arbitration: it claims the
// lease, renews it on the holder's schedule while granted, and releases
// it on request or on shutdown.
type Claimant struct {
	cfg      Config
	clientID uint64
	logger   *log.Logger

	send *net.UDPConn
	recv *net.UDPConn

	mu      sync.Mutex
	held    bool
	pending chan *wire.FocusPacket

	closeOnce sync.Once
}

// NewClaimant opens the claimant's control-group sockets. clientID
// should come from NewClientID and stay stable for this process's
// lifetime.
func NewClaimant(cfg Config, clientID uint64, logger *log.Logger) (*Claimant, error) {
	full := cfg.withDefaults()
	send, err := mcast.OpenSend(full.Control)
	if err != nil {
		return nil, err
	}
	recv, err := mcast.OpenRecv(full.Control, full.Interface)
	if err != nil {
		send.Close()
		return nil, err
	}
	return &Claimant{
		cfg:      full,
		clientID: clientID,
		logger:   newLogger(logger, "focus"),
		send:     send,
		recv:     recv,
		pending:  make(chan *wire.FocusPacket, 8),
	}, nil
}

// ClientID returns this claimant's wire client ID.
func (c *Claimant) ClientID() uint64 { return c.clientID }

// Held reports whether this claimant currently believes it holds focus.
func (c *Claimant) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// Close releases the claimant's sockets. Safe to call more than once.
func (c *Claimant) Close() error {
	c.closeOnce.Do(func() {
		c.send.Close()
		c.recv.Close()
	})
	return nil
}

// Listen drains Grant/Deny replies off the control group into the
// claimant's pending channel until ctx is cancelled; Claim and Release
// both depend on this running concurrently.
func (c *Claimant) Listen(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		c.recv.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := c.recv.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		pkt, err := wire.Decode(buf[:n])
		if err != nil || pkt.Focus == nil {
			continue
		}
		f := pkt.Focus
		switch f.Op {
		case wire.FocusGrant:
			if f.ClientID == c.clientID {
				c.mu.Lock()
				c.held = true
				c.mu.Unlock()
			}
		case wire.FocusDeny:
			if f.ClientID == c.clientID {
				c.mu.Lock()
				c.held = false
				c.mu.Unlock()
			}
		}
		select {
		case c.pending <- f:
		default:
		}
	}
}

// Claim asks the arbiter for focus, waiting up to defaultClaimTimeout for
// a matching Grant or Deny. preempt forces an override of an active,
// unexpired holder rather than being denied against one.
func (c *Claimant) Claim(ctx context.Context, preempt bool) (bool, error) {
	c.drainPending()
	if err := c.sendOp(wire.FocusClaim, preempt, ""); err != nil {
		return false, err
	}

	deadline := time.Now().Add(defaultClaimTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case f := <-c.pending:
			if f.ClientID != c.clientID {
				continue
			}
			switch f.Op {
			case wire.FocusGrant:
				return true, nil
			case wire.FocusDeny:
				return false, nil
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	return false, nil
}

// RenewLoop sends a Heartbeat on the holder's renewal cadence until ctx
// is cancelled or the claimant no longer believes it holds focus.
func (c *Claimant) RenewLoop(ctx context.Context) error {
	ticker := time.NewTicker(DefaultRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			if !c.Held() {
				continue
			}
			if err := c.sendOp(wire.FocusHeartbeat, false, ""); err != nil {
				c.logger.Warn("focus renew failed", "err", err)
			}
		}
	}
}

// SendFeedback forwards locally-captured MIDI input toward the host's
// physical device, tagged with this claimant's client_id. Callers should
// only send while Held() is true; the host silently drops feedback from
// anyone but the current grant holder (spec.md §4.11).
func (c *Claimant) SendFeedback(msgs []wire.MidiMessage) error {
	f := &wire.FeedbackPacket{ClientID: c.clientID, Messages: msgs}
	pkt := &wire.Packet{Header: wire.Header{Version: wire.Version}, Feedback: f}
	buf, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = c.send.WriteToUDP(buf, c.cfg.Control)
	return err
}

// Release gives up focus immediately.
func (c *Claimant) Release() error {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()
	return c.sendOp(wire.FocusRelease, false, "")
}

func (c *Claimant) drainPending() {
	for {
		select {
		case <-c.pending:
		default:
			return
		}
	}
}

func (c *Claimant) sendOp(op wire.FocusOp, preempt bool, reason string) error {
	f := &wire.FocusPacket{Op: op, ClientID: c.clientID, Preempt: preempt, Reason: reason}
	pkt := &wire.Packet{Header: wire.Header{Version: wire.Version}, Focus: f}
	buf, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	_, err = c.send.WriteToUDP(buf, c.cfg.Control)
	return err
}
