package client

import (
	"context"
	"fmt"

	"github.com/hakolsound/midinet/internal/focus"
)

// Commands implements the client-side half of spec.md §6.3's command
// surface: trigger_failover() and the claim_focus/release_focus pair,
// for the feedback-write lease this client may hold. Focus is optional
// (nil-checked) since not every client participates in focus
// arbitration.
type Commands struct {
	Monitor *Monitor
	Focus   *focus.Claimant
}

// NewCommands builds a Commands wrapping monitor and (optionally) a
// focus.Claimant this client owns.
func NewCommands(monitor *Monitor, claimant *focus.Claimant) *Commands {
	return &Commands{Monitor: monitor, Focus: claimant}
}

// TriggerFailover requests an immediate manual switch to the other
// stream (spec §6.3 trigger_failover()).
func (c *Commands) TriggerFailover(ctx context.Context) error {
	if c.Monitor == nil {
		return fmt.Errorf("client: no monitor configured")
	}
	c.Monitor.TriggerFailover(ctx)
	return nil
}

// ClaimFocus attempts to claim the feedback-write lease for this
// client (spec §6.3 claim_focus(client_id)); preempt overrides an
// active, unexpired holder per spec.md §4.11.
func (c *Commands) ClaimFocus(ctx context.Context, preempt bool) (bool, error) {
	if c.Focus == nil {
		return false, fmt.Errorf("client: no focus claimant configured")
	}
	return c.Focus.Claim(ctx, preempt)
}

// ReleaseFocus releases this client's feedback-write lease, if held
// (spec §6.3 release_focus(client_id)).
func (c *Commands) ReleaseFocus() error {
	if c.Focus == nil {
		return fmt.Errorf("client: no focus claimant configured")
	}
	return c.Focus.Release()
}
