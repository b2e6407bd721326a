package client

import (
	"context"
	"time"

	"github.com/hakolsound/midinet/internal/wire"
)

// FailoverState is the client-side state machine spec.md §4.9/§4.12
// describes: Healthy while the active stream's heartbeats arrive inside
// the miss threshold, Degraded when both streams have gone dark,
// Switching while a new active stream is being selected, and Reconciling
// while the journal catch-up round trip is in flight.
type FailoverState uint8

const (
	StateHealthy FailoverState = iota
	StateDegraded
	StateSwitching
	StateReconciling
)

func (s FailoverState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateSwitching:
		return "switching"
	case StateReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// evaluateLoop ticks the failover state machine at 1ms, the cadence
// spec.md §4.12 calls for, until ctx is cancelled.
func (m *Monitor) evaluateLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.evaluate(ctx, now)
		}
	}
}

// evaluate implements the literal decision the monitor repeats on every
// tick: keep the active stream while its heartbeats arrive, switch to the
// other stream once they don't (and it's healthy), or declare Degraded
// and send All Notes Off if both streams have gone dark.
func (m *Monitor) evaluate(ctx context.Context, now time.Time) {
	m.mu.Lock()
	state := m.state
	active := m.active
	m.mu.Unlock()

	if state == StateSwitching || state == StateReconciling {
		return // a switch already in flight owns the next transition
	}

	primarySnap := m.primary.state.snapshot()
	standbySnap := m.standby.state.snapshot()

	activeSnap, otherID, otherSnap := primarySnap, wire.StreamStandby, standbySnap
	if active == wire.StreamStandby {
		activeSnap, otherID, otherSnap = standbySnap, wire.StreamPrimary, primarySnap
	}

	missWindow := m.cfg.missWindow()
	dark := func(snap streamSnapshot, within time.Duration) bool {
		return snap.lastHBRx.IsZero() || now.Sub(snap.lastHBRx) > within
	}

	if dark(primarySnap, darkThreshold) && dark(standbySnap, darkThreshold) {
		m.setState(StateDegraded)
		m.maybeSendDegradedANO(now)
		return
	}
	if !dark(activeSnap, missWindow) {
		m.setState(StateHealthy)
		return
	}
	if dark(otherSnap, missWindow) {
		// active stream missed its threshold and the other is no
		// healthier: nothing to switch to.
		m.setState(StateDegraded)
		m.maybeSendDegradedANO(now)
		return
	}
	m.switchActive(ctx, otherID, now, "active stream missed heartbeat threshold")
}

func (m *Monitor) setState(s FailoverState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) maybeSendDegradedANO(now time.Time) {
	m.mu.Lock()
	due := now.Sub(m.lastANO) >= DefaultDegradedANOPeriod
	if due {
		m.lastANO = now
	}
	m.mu.Unlock()
	if due {
		m.sendAllNotesOff(now)
	}
}

// sendAllNotesOff synthesizes a CC123 (All Notes Off) for every MIDI
// channel and writes it straight to the sink, bypassing dedup: this is a
// local safety action, not forwarded stream content.
func (m *Monitor) sendAllNotesOff(now time.Time) {
	ts := uint64(now.UnixNano())
	for ch := uint8(1); ch <= 16; ch++ {
		msg := wire.MidiMessage{Channel: ch, Kind: wire.ControlChange, Bytes: []byte{123, 0}, TimestampNS: ts}
		if err := m.sink.Write(msg); err != nil {
			m.logger.Warn("all notes off write failed", "channel", ch, "err", err)
		}
	}
}

// switchActive moves the active stream to "to", honoring SwitchLockout to
// avoid flapping between two marginal streams, then reconciles against
// the new stream's journal before resuming live forwarding.
func (m *Monitor) switchActive(ctx context.Context, to wire.StreamID, now time.Time, reason string) {
	m.mu.Lock()
	if now.Sub(m.lastSwitch) < m.cfg.SwitchLockout {
		m.mu.Unlock()
		return
	}
	m.state = StateSwitching
	m.active = to
	m.jitter = newJitterBuffer(m.cfg.JitterBuffer)
	m.lastSwitch = now
	m.switchCount.Add(1)
	epoch, seq := m.epoch, m.lastAppliedSeq
	m.mu.Unlock()

	m.logger.Warn("switching active stream", "to", to, "reason", reason)
	m.sendAllNotesOff(now)

	m.setState(StateReconciling)
	if err := m.reconcile(ctx, epoch, seq); err != nil {
		m.logger.Warn("journal reconcile failed", "err", err)
	}
	m.setState(StateHealthy)
}
