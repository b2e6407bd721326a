package host

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hakolsound/midinet/internal/focus"
	"github.com/hakolsound/midinet/internal/host/redundancy"
	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/pipeline"
)

// Commands implements the host-side half of spec.md §6.3's command
// surface as plain Go methods: the REST/WebSocket transport an external
// admin layer would expose them through is out of scope, but the
// operations themselves are in-scope core behaviour. Every field is
// optional (nil-checked) so a binary can build a Commands around
// whichever of redundancy/focus/pipeline it actually constructed.
type Commands struct {
	Redundancy *redundancy.Controller
	Focus      *focus.Arbiter
	Pipeline   *pipeline.Publisher
	logger     *log.Logger

	designatedPrimary uint16
}

// NewCommands builds a Commands wrapping the given (optionally nil)
// components. logger may be nil to use the package default.
func NewCommands(r *redundancy.Controller, f *focus.Arbiter, p *pipeline.Publisher, logger *log.Logger) *Commands {
	if logger == nil {
		logger = logging.New(logging.Options{Component: "host"})
	}
	return &Commands{Redundancy: r, Focus: f, Pipeline: p, logger: logger.With("component", "host.commands")}
}

// TriggerFailover requests an immediate manual input switch (spec §6.3
// trigger_failover()), delegating to the redundancy controller's
// criterion-1 path. guard mirrors WithGuardRequired's gate: pass true
// unless the controller was built without WithGuardRequired(true).
func (c *Commands) TriggerFailover(guard bool) (bool, error) {
	if c.Redundancy == nil {
		return false, fmt.Errorf("host: no redundancy controller configured")
	}
	ok := c.Redundancy.TriggerManual(guard, time.Now())
	c.logger.Info("trigger_failover", "accepted", ok)
	return ok, nil
}

// SetAutoFailover toggles criterion 3 (timeout-driven auto-switch) at
// runtime (spec §6.3 set_auto_failover(bool)).
func (c *Commands) SetAutoFailover(enabled bool) error {
	if c.Redundancy == nil {
		return fmt.Errorf("host: no redundancy controller configured")
	}
	c.Redundancy.SetAutoSwitch(enabled)
	c.logger.Info("set_auto_failover", "enabled", enabled)
	return nil
}

// ClaimFocus installs clientID as the feedback-write lease holder (spec
// §6.3 claim_focus(client_id)), overriding whatever normal Claim
// arbitration would otherwise decide.
func (c *Commands) ClaimFocus(clientID uint64) error {
	if c.Focus == nil {
		return fmt.Errorf("host: no focus arbiter configured")
	}
	c.Focus.ForceGrant(clientID)
	return nil
}

// ReleaseFocus revokes the current feedback-write lease regardless of
// holder (spec §6.3 release_focus(client_id); the client_id argument is
// accepted for API symmetry but ForceRelease affects whoever currently
// holds it, matching spec.md §4.11's admin release path).
func (c *Commands) ReleaseFocus(clientID uint64) error {
	if c.Focus == nil {
		return fmt.Errorf("host: no focus arbiter configured")
	}
	c.Focus.ForceRelease()
	return nil
}

// SetDesignatedPrimary records which host_id an operator wants treated
// as primary for switch-back purposes (spec §6.3
// set_designated_primary(host_id)); it does not itself move any stream,
// and no switch-back logic reads the value: it is only reported back by
// DesignatedPrimary.
func (c *Commands) SetDesignatedPrimary(hostID uint16) {
	c.designatedPrimary = hostID
	c.logger.Info("set_designated_primary", "host_id", hostID)
}

// DesignatedPrimary returns the host_id last set by SetDesignatedPrimary,
// or 0 if never called.
func (c *Commands) DesignatedPrimary() uint16 { return c.designatedPrimary }

// ReloadPipeline publishes a new transform pipeline (spec §6.3
// reload_pipeline(stages)), taking effect on the next message the
// broadcaster processes.
func (c *Commands) ReloadPipeline(p *pipeline.Pipeline) error {
	if c.Pipeline == nil {
		return fmt.Errorf("host: no pipeline publisher configured")
	}
	c.Pipeline.Store(p)
	c.logger.Info("reload_pipeline", "stages", len(p.Stages))
	return nil
}
