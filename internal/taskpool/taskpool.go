// Package taskpool implements the cooperative task pool of the
// concurrency model (§5): a fixed-size group of long-lived goroutines,
// all cancelled together through one context.Context, plus a single
// multi-producer/single-consumer queue for the out-of-band events
// (focus grants, redundancy switches, discovery updates) that cross
// between them without shared memory. The run/cancel/Wait shape mirrors
// host.Broadcaster.Run and client.Client.Run's own errgroup.WithContext
// use, generalised so cmd/ binaries can wire host, client, focus, and
// osctrigger tasks into one supervised set instead of each owning its
// own ad hoc errgroup.
package taskpool

import (
	"context"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/hakolsound/midinet/internal/logging"
)

// Event is an out-of-band notification posted through a Pool's queue:
// a focus grant/deny, a redundancy switch, a discovery update, or any
// other cross-task signal a SPEC_FULL.md component needs to publish
// without the sender and receiver sharing memory.
type Event struct {
	// Kind names the event for logging and type-switches by receivers,
	// e.g. "focus.granted", "redundancy.switched", "discovery.updated".
	Kind string
	// Payload carries the event's data; receivers type-assert it.
	Payload any
}

// DefaultQueueDepth bounds the MPSC event queue. A slow consumer sheds
// the oldest events rather than blocking producers (see Publish).
const DefaultQueueDepth = 64

// Pool runs a bounded set of long-lived tasks under one cancellation
// token and exposes a single MPSC event channel between them. It is
// sized max(2, runtime.NumCPU()) by default, matching SPEC_FULL.md §5;
// the size only bounds concurrent Go() goroutines conceptually — Go
// itself never blocks waiting for a slot, since every task here is
// long-lived for the pool's whole lifetime, not a short unit of work
// queued against a fixed worker count.
type Pool struct {
	size   int
	logger *log.Logger

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithSize overrides the default max(2, runtime.NumCPU()) sizing.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithQueueDepth overrides DefaultQueueDepth.
func WithQueueDepth(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.events = make(chan Event, n)
		}
	}
}

// WithLogger overrides the default component logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New builds a Pool bound to ctx: cancelling ctx, or any task returning
// a non-nil error other than context.Canceled, cancels every other task
// through the Pool's own derived context.
func New(ctx context.Context, opts ...Option) (*Pool, context.Context) {
	p := &Pool{
		size:   max(2, runtime.NumCPU()),
		events: make(chan Event, DefaultQueueDepth),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.New(logging.Options{Component: "taskpool"})
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.group, p.ctx = errgroup.WithContext(cancelCtx)
	return p, p.ctx
}

// Size reports the pool's configured concurrency, max(2, NumCPU())
// unless overridden by WithSize.
func (p *Pool) Size() int { return p.size }

// Go schedules a long-lived task. fn should run until p's context is
// cancelled and then return context.Canceled (or nil); any other error
// triggers cancellation of the whole pool, the same first-error-wins
// semantics host.Broadcaster.Run and client.Client.Run already use.
func (p *Pool) Go(fn func(ctx context.Context) error) {
	p.group.Go(func() error { return fn(p.ctx) })
}

// Publish enqueues an event for the pool's consumer(s). If the queue is
// full, the oldest pending event is dropped to make room — a slow
// consumer must never stall a producer's own task loop — and a warning
// is logged so a persistently saturated queue is visible in operation.
func (p *Pool) Publish(evt Event) {
	for {
		select {
		case p.events <- evt:
			return
		default:
		}
		select {
		case dropped := <-p.events:
			p.logger.Warn("event queue saturated, dropping oldest", "dropped_kind", dropped.Kind, "kind", evt.Kind)
		default:
			// Raced with the consumer draining; retry the send.
		}
	}
}

// Events returns the channel a single consumer goroutine should range
// over to receive posted events in order.
func (p *Pool) Events() <-chan Event { return p.events }

// Wait blocks until every task registered with Go has returned, then
// returns the first non-context.Canceled error, or nil.
func (p *Pool) Wait() error {
	if err := p.group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Cancel cancels the pool's derived context, signalling every running
// task to stop. Wait still must be called to observe task completion.
func (p *Pool) Cancel() { p.cancel() }
