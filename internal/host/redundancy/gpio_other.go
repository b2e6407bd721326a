//go:build !linux

package redundancy

// GPIOTrigger is a no-op stub outside Linux: go-gpiocdev is a Linux
// gpiochar-device client with no portable equivalent. Deployments on
// other platforms use TriggerManual directly from the API/OSC path
// instead of a physical button.
type GPIOTrigger struct{}

// NewGPIOTrigger always returns ErrUnsupported.
func NewGPIOTrigger(chip string, triggerOffset, guardOffset int, ctrl *Controller) (*GPIOTrigger, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (g *GPIOTrigger) Close() error { return nil }
