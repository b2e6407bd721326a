//go:build !linux

package redundancy

import (
	"context"
	"errors"
)

// HotplugFeed is a no-op stub outside Linux: go-udev's netlink monitor has
// no portable equivalent, so non-Linux deployments rely solely on
// activity-timeout and error/disconnect observation from the virtual
// device's own I/O layer.
type HotplugFeed struct{}

// NewHotplugFeed returns a feed whose Run immediately reports
// ErrUnsupported.
func NewHotplugFeed(ctrl *Controller, matchSlot func(dev any) (Slot, bool)) *HotplugFeed {
	return &HotplugFeed{}
}

// ErrUnsupported is returned by HotplugFeed.Run on non-Linux platforms.
var ErrUnsupported = errors.New("redundancy: udev hotplug feed is Linux-only")

// Run always returns ErrUnsupported.
func (f *HotplugFeed) Run(ctx context.Context) error {
	return ErrUnsupported
}
