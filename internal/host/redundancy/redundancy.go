// Package redundancy implements the input-redundancy controller: it
// tracks the health of the active and backup physical MIDI source
// devices and decides, per spec.md §4.8's priority-ordered switch
// criteria, which one the broadcaster should be reading from.
package redundancy

import (
	"sync"
	"time"
)

// Health is a source device's observed state.
type Health int

const (
	Unknown Health = iota
	Active
	Reconnecting
	Error
	Disconnected
)

func (h Health) String() string {
	switch h {
	case Active:
		return "active"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Slot identifies which of the two tracked devices an event concerns.
type Slot int

const (
	SlotActive Slot = iota
	SlotBackup
)

// Defaults per spec.md §4.8.
const (
	DefaultActivityTimeout = 30 * time.Second
	DefaultLockout         = 5 * time.Second
)

// deviceState is one tracked source device's health and last-seen clock.
type deviceState struct {
	health    Health
	lastSeen  time.Time
	lastError error
}

// Controller arbitrates between an active and a backup MIDI source
// device, applying the switch-criteria priority order from spec.md §4.8:
// manual trigger first, then active-device error/disconnect, then
// timeout-driven auto-switch. A lockout period after any switch prevents
// oscillation between a flapping pair of devices.
type Controller struct {
	mu sync.Mutex

	devices [2]deviceState // indexed by Slot
	// current reports which Slot is presently selected as the live input.
	current Slot

	activityTimeout time.Duration
	lockout         time.Duration
	lastSwitch      time.Time

	autoSwitchEnabled bool
	requireGuard      bool

	onSwitch func(from, to Slot, reason string)
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithActivityTimeout overrides DefaultActivityTimeout.
func WithActivityTimeout(d time.Duration) Option {
	return func(c *Controller) { c.activityTimeout = d }
}

// WithLockout overrides DefaultLockout.
func WithLockout(d time.Duration) Option {
	return func(c *Controller) { c.lockout = d }
}

// WithAutoSwitch enables criterion 3 (timeout-driven auto-switch) at
// construction; it can also be toggled at runtime via SetAutoSwitch.
func WithAutoSwitch(enabled bool) Option {
	return func(c *Controller) { c.autoSwitchEnabled = enabled }
}

// WithGuardRequired requires TriggerManual's guard parameter to be true
// for a manual switch to take effect, per spec.md §4.8's "guard secondary
// trigger" requirement.
func WithGuardRequired(required bool) Option {
	return func(c *Controller) { c.requireGuard = required }
}

// OnSwitch registers a callback invoked (outside the controller's lock)
// whenever the live input changes.
func OnSwitch(f func(from, to Slot, reason string)) Option {
	return func(c *Controller) { c.onSwitch = f }
}

// New returns a Controller with SlotActive selected and both devices
// Unknown until the first Observe call.
func New(opts ...Option) *Controller {
	c := &Controller{
		current:         SlotActive,
		activityTimeout: DefaultActivityTimeout,
		lockout:         DefaultLockout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAutoSwitch toggles auto_switch_enabled at runtime.
func (c *Controller) SetAutoSwitch(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoSwitchEnabled = enabled
}

// Current reports which Slot is presently the live input.
func (c *Controller) Current() Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Health reports slot's last-observed health.
func (c *Controller) Health(slot Slot) Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices[slot].health
}

// ObserveActivity records that a message was received from slot,
// clearing any Error/Disconnected state back to Active.
func (c *Controller) ObserveActivity(slot Slot, at time.Time) {
	c.mu.Lock()
	c.devices[slot].health = Active
	c.devices[slot].lastSeen = at
	c.devices[slot].lastError = nil
	c.mu.Unlock()
}

// ObserveOpen marks slot Active following a successful (re)open.
func (c *Controller) ObserveOpen(slot Slot, at time.Time) {
	c.mu.Lock()
	c.devices[slot].health = Active
	c.devices[slot].lastSeen = at
	c.mu.Unlock()
}

// ObserveReconnecting marks slot Reconnecting, e.g. while a device-recreate
// attempt is in flight after a prior error.
func (c *Controller) ObserveReconnecting(slot Slot, at time.Time) {
	c.mu.Lock()
	c.devices[slot].health = Reconnecting
	c.devices[slot].lastSeen = at
	c.mu.Unlock()
}

// ObserveClose marks slot Disconnected following a close/unplug event.
// Criterion 2 (active-device error or disconnect) is evaluated against
// this immediately if slot is the current live input.
func (c *Controller) ObserveClose(slot Slot, at time.Time) {
	c.mu.Lock()
	c.devices[slot].health = Disconnected
	c.devices[slot].lastSeen = at
	switchTo, reason, ok := c.evaluateLocked(at)
	c.mu.Unlock()
	if ok {
		c.fireSwitch(switchTo, reason)
	}
}

// ObserveError marks slot Error following an I/O error. Criterion 2 is
// evaluated immediately if slot is the current live input.
func (c *Controller) ObserveError(slot Slot, at time.Time, err error) {
	c.mu.Lock()
	c.devices[slot].health = Error
	c.devices[slot].lastError = err
	switchTo, reason, ok := c.evaluateLocked(at)
	c.mu.Unlock()
	if ok {
		c.fireSwitch(switchTo, reason)
	}
}

// CheckTimeout evaluates criterion 3 (auto-switch on activity timeout).
// Callers tick this periodically (e.g. from the task pool, not the
// real-time ingress thread).
func (c *Controller) CheckTimeout(at time.Time) {
	c.mu.Lock()
	switchTo, reason, ok := c.evaluateLocked(at)
	c.mu.Unlock()
	if ok {
		c.fireSwitch(switchTo, reason)
	}
}

// TriggerManual applies criterion 1: a manual API/OSC/MIDI switch
// request. guard must be true when WithGuardRequired(true) was set, or
// the trigger is ignored per spec.md §4.8.
func (c *Controller) TriggerManual(guard bool, at time.Time) bool {
	c.mu.Lock()
	if c.requireGuard && !guard {
		c.mu.Unlock()
		return false
	}
	if c.inLockoutLocked(at) {
		c.mu.Unlock()
		return false
	}
	from := c.current
	to := other(from)
	c.current = to
	c.lastSwitch = at
	c.mu.Unlock()
	c.fireSwitch(to, "manual")
	return true
}

// evaluateLocked applies criteria 2 and 3, in priority order, returning
// the slot to switch to if a switch is warranted. Caller holds c.mu.
func (c *Controller) evaluateLocked(at time.Time) (Slot, string, bool) {
	if c.inLockoutLocked(at) {
		return 0, "", false
	}

	active := c.current
	backup := other(active)

	// Criterion 2: active-device error or disconnect.
	switch c.devices[active].health {
	case Error, Disconnected:
		if c.devices[backup].health == Active || c.devices[backup].health == Unknown {
			c.current = backup
			c.lastSwitch = at
			return backup, "active-device-error", true
		}
	}

	// Criterion 3: timeout-driven auto-switch.
	if c.autoSwitchEnabled && c.backupHealthyLocked() && c.activeTimedOutLocked(at) {
		c.current = backup
		c.lastSwitch = at
		return backup, "activity-timeout", true
	}

	return 0, "", false
}

func (c *Controller) backupHealthyLocked() bool {
	backup := other(c.current)
	return c.devices[backup].health == Active
}

func (c *Controller) activeTimedOutLocked(at time.Time) bool {
	last := c.devices[c.current].lastSeen
	if last.IsZero() {
		return false
	}
	return at.Sub(last) >= c.activityTimeout
}

func (c *Controller) inLockoutLocked(at time.Time) bool {
	if c.lastSwitch.IsZero() {
		return false
	}
	return at.Sub(c.lastSwitch) < c.lockout
}

func (c *Controller) fireSwitch(to Slot, reason string) {
	if c.onSwitch != nil {
		c.onSwitch(other(to), to, reason)
	}
}

func other(s Slot) Slot {
	if s == SlotActive {
		return SlotBackup
	}
	return SlotActive
}
