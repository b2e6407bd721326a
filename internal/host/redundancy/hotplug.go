//go:build linux

package redundancy

import (
	"context"
	"time"

	"github.com/jochenvg/go-udev"
)

// HotplugFeed watches udev for add/remove events on USB MIDI devices and
// feeds them into a Controller as ObserveOpen/ObserveClose calls,
// matched to a Slot by subsystem, so an unplug is seen immediately
// rather than waiting out ACTIVITY_TIMEOUT_MS (SPEC_FULL.md §4.8: hotplug
// feeds criterion 2 faster than polling would, it is not a fourth
// criterion).
type HotplugFeed struct {
	ctrl *Controller
	// MatchSlot maps a udev device to the Slot it represents, or ok=false
	// if the device is unrelated to either tracked source.
	MatchSlot func(dev *udev.Device) (Slot, bool)
}

// NewHotplugFeed returns a feed bound to ctrl. Run must be called to
// start watching.
func NewHotplugFeed(ctrl *Controller, matchSlot func(dev *udev.Device) (Slot, bool)) *HotplugFeed {
	return &HotplugFeed{ctrl: ctrl, MatchSlot: matchSlot}
}

// Run watches udev sound-subsystem events until ctx is cancelled.
func (f *HotplugFeed) Run(ctx context.Context) error {
	u := udev.Udev{}
	m := u.NewMonitorFromNetlink("udev")
	if err := m.FilterAddMatchSubsystem("sound"); err != nil {
		return err
	}

	deviceCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				continue // a transient netlink read error; keep watching
			}
		case dev := <-deviceCh:
			f.handle(dev)
		}
	}
}

func (f *HotplugFeed) handle(dev *udev.Device) {
	slot, ok := f.MatchSlot(dev)
	if !ok {
		return
	}
	now := time.Now()
	switch dev.Action() {
	case "add", "bind":
		f.ctrl.ObserveOpen(slot, now)
	case "remove", "unbind":
		f.ctrl.ObserveClose(slot, now)
	}
}
