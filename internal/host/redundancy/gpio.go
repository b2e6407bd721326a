//go:build linux

package redundancy

import (
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOTrigger wires a physical momentary-switch GPIO line to
// Controller.TriggerManual, for deployments with a panic-button style
// failover switch rather than only an API/OSC trigger. The line is read
// as the guard input spec.md §4.8 requires (a trigger without the guard
// held is ignored) by sampling its level at the moment the trigger line
// edges.
type GPIOTrigger struct {
	ctrl      *Controller
	line      *gpiocdev.Line
	guardLine *gpiocdev.Line
}

// NewGPIOTrigger opens triggerOffset as an edge-detect input and, if
// guardOffset >= 0, guardOffset as a plain level input sampled on each
// trigger edge.
func NewGPIOTrigger(chip string, triggerOffset, guardOffset int, ctrl *Controller) (*GPIOTrigger, error) {
	g := &GPIOTrigger{ctrl: ctrl}

	line, err := gpiocdev.RequestLine(chip, triggerOffset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(g.onEdge),
	)
	if err != nil {
		return nil, err
	}
	g.line = line

	if guardOffset >= 0 {
		guardLine, err := gpiocdev.RequestLine(chip, guardOffset, gpiocdev.AsInput)
		if err != nil {
			line.Close()
			return nil, err
		}
		g.guardLine = guardLine
	}

	return g, nil
}

func (g *GPIOTrigger) onEdge(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.RisingEdge {
		return
	}
	guard := true
	if g.guardLine != nil {
		v, err := g.guardLine.Value()
		guard = err == nil && v == 1
	}
	g.ctrl.TriggerManual(guard, time.Now())
}

// Close releases the GPIO lines.
func (g *GPIOTrigger) Close() error {
	if g.guardLine != nil {
		g.guardLine.Close()
	}
	return g.line.Close()
}
