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

// Arbiter is the host-side focus authority: it owns the current grant and
// decides every Claim/Release/Heartbeat it sees on the control group,
// applying spec.md §4.11's rules. Feedback is gated by Accept: a
// FeedbackPacket is relayed onward only when its client_id holds focus.
type Arbiter struct {
	cfg    Config
	logger *log.Logger

	send *net.UDPConn
	recv *net.UDPConn

	mu      sync.Mutex
	current grant
	held    bool

	feedbackSink func([]wire.MidiMessage)

	closeOnce sync.Once
}

// NewArbiter opens the arbiter's control-group sockets.
func NewArbiter(cfg Config, logger *log.Logger) (*Arbiter, error) {
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
	return &Arbiter{
		cfg:    full,
		logger: newLogger(logger, "focus"),
		send:   send,
		recv:   recv,
	}, nil
}

// Close releases the arbiter's sockets. Safe to call more than once.
func (a *Arbiter) Close() error {
	a.closeOnce.Do(func() {
		a.send.Close()
		a.recv.Close()
	})
	return nil
}

// Holder returns the current lease holder's client ID and whether any
// unexpired grant exists.
func (a *Arbiter) Holder() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.held || a.current.expired(time.Now()) {
		return 0, false
	}
	return a.current.clientID, true
}

// SetFeedbackSink installs the function the arbiter hands accepted
// feedback messages to — the host's physical-device write path. Called
// once during startup wiring, before Run.
func (a *Arbiter) SetFeedbackSink(sink func([]wire.MidiMessage)) {
	a.feedbackSink = sink
}

// Accept reports whether a feedback message claiming to come from
// clientID should be relayed onward — the single-writer gate spec.md
// §4.11 requires of the host's feedback-receive path.
func (a *Arbiter) Accept(clientID uint64) bool {
	holder, ok := a.Holder()
	return ok && holder == clientID
}

// Run reads FocusPackets off the control group and arbitrates them until
// ctx is cancelled.
func (a *Arbiter) Run(ctx context.Context) error {
	buf := make([]byte, wire.MTULimit)
	for {
		if ctx.Err() != nil {
			return context.Canceled
		}
		a.recv.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := a.recv.ReadFromUDP(buf)
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
		if err != nil {
			a.logger.Debug("dropped unparseable focus packet", "err", err)
			continue
		}
		switch {
		case pkt.Focus != nil:
			a.handle(pkt.Focus, time.Now())
		case pkt.Feedback != nil:
			a.handleFeedback(pkt.Feedback)
		}
	}
}

// handleFeedback relays an incoming FeedbackPacket's messages to the
// installed sink, but only if its claimed client_id matches the current
// grant holder (spec.md §4.11's single-writer gate).
func (a *Arbiter) handleFeedback(f *wire.FeedbackPacket) {
	if !a.Accept(f.ClientID) {
		a.logger.Debug("dropped feedback from non-holder", "client_id", f.ClientID)
		return
	}
	if a.feedbackSink != nil {
		a.feedbackSink(f.Messages)
	}
}

func (a *Arbiter) handle(f *wire.FocusPacket, now time.Time) {
	switch f.Op {
	case wire.FocusClaim:
		a.handleClaim(f, now)
	case wire.FocusHeartbeat:
		a.handleRenew(f, now)
	case wire.FocusRelease:
		a.handleRelease(f, now)
	}
}

func (a *Arbiter) handleClaim(f *wire.FocusPacket, now time.Time) {
	a.mu.Lock()
	accept := !a.held || a.current.expired(now) || a.current.clientID == f.ClientID || f.Preempt
	if accept {
		a.current = grant{clientID: f.ClientID, leaseUntil: now.Add(a.cfg.LeaseDuration)}
		a.held = true
	}
	leaseUntil := a.current.leaseUntil
	a.mu.Unlock()

	if accept {
		a.logger.Info("focus granted", "client_id", f.ClientID)
		a.sendOp(wire.FocusGrant, f.ClientID, leaseUntil, "")
	} else {
		a.logger.Info("focus claim denied", "client_id", f.ClientID)
		a.sendOp(wire.FocusDeny, f.ClientID, time.Time{}, "holder active")
	}
}

func (a *Arbiter) handleRenew(f *wire.FocusPacket, now time.Time) {
	a.mu.Lock()
	isHolder := a.held && a.current.clientID == f.ClientID && !a.current.expired(now)
	if isHolder {
		a.current.leaseUntil = now.Add(a.cfg.LeaseDuration)
	}
	a.mu.Unlock()
	if !isHolder {
		a.logger.Debug("ignoring heartbeat from non-holder", "client_id", f.ClientID)
	}
}

func (a *Arbiter) handleRelease(f *wire.FocusPacket, now time.Time) {
	a.mu.Lock()
	isHolder := a.held && a.current.clientID == f.ClientID
	if isHolder {
		a.held = false
	}
	a.mu.Unlock()
	if isHolder {
		a.logger.Info("focus released", "client_id", f.ClientID)
	}
}

// ForceGrant installs clientID as the holder directly, bypassing the
// normal Claim/accept path — the admin claim_focus(client_id) command of
// spec.md §6.3, for an external operator overriding whatever client
// currently (or doesn't yet) hold the lease. It broadcasts the same
// FocusGrant a client's own accepted Claim would receive, so a Claimant
// already watching the control group updates its Held() state without
// needing to re-send a Claim itself.
func (a *Arbiter) ForceGrant(clientID uint64) {
	leaseUntil := time.Now().Add(a.cfg.LeaseDuration)
	a.mu.Lock()
	a.current = grant{clientID: clientID, leaseUntil: leaseUntil}
	a.held = true
	a.mu.Unlock()
	a.logger.Info("focus force-granted", "client_id", clientID)
	a.sendOp(wire.FocusGrant, clientID, leaseUntil, "admin override")
}

// ForceRelease revokes the current grant regardless of holder — the
// "admin" release path spec.md §4.11 allows alongside a holder's own
// Release.
func (a *Arbiter) ForceRelease() {
	a.mu.Lock()
	wasHeld, holder := a.held, a.current.clientID
	a.held = false
	a.mu.Unlock()
	if wasHeld {
		a.logger.Info("focus force-released", "client_id", holder)
	}
}

func (a *Arbiter) sendOp(op wire.FocusOp, clientID uint64, leaseUntil time.Time, reason string) {
	f := &wire.FocusPacket{Op: op, ClientID: clientID, Reason: reason}
	if !leaseUntil.IsZero() {
		f.LeaseUntilNS = uint64(leaseUntil.UnixNano())
	}
	pkt := &wire.Packet{Header: wire.Header{Version: wire.Version}, Focus: f}
	buf, err := wire.Encode(pkt)
	if err != nil {
		a.logger.Error("failed to encode focus packet", "op", op, "err", err)
		return
	}
	if _, err := a.send.WriteToUDP(buf, a.cfg.Control); err != nil {
		a.logger.Error("failed to send focus packet", "op", op, "err", err)
	}
}
