// Package vmidi implements the platform-abstracted virtual MIDI device
// capability: a single Device type that opens an input/output port pair
// cloned from a host's IdentityPacket, satisfies internal/client's
// MidiSink, and survives a write failure by retrying before recreating
// the underlying port.
package vmidi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/wire"
)

// Variant identifies which platform MIDI backend a Device is using.
type Variant uint8

const (
	VariantNull Variant = iota
	VariantCoreMidi
	VariantAlsaSequencer
	VariantTeVirtualMidi
	VariantWindowsMidiServices
)

func (v Variant) String() string {
	switch v {
	case VariantCoreMidi:
		return "CoreMidi"
	case VariantAlsaSequencer:
		return "AlsaSequencer"
	case VariantTeVirtualMidi:
		return "TeVirtualMidi"
	case VariantWindowsMidiServices:
		return "WindowsMidiServices"
	default:
		return "Null"
	}
}

// DeviceError wraps a failed device operation with the variant and
// operation name that produced it.
type DeviceError struct {
	Variant Variant
	Op      string
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("vmidi: %s %s: %v", e.Variant, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// writeRetries and writeRetrySpacing implement spec's virtual-device
// write failure policy: retry 3x with 1ms spacing before giving up.
const (
	writeRetries      = 3
	writeRetrySpacing = time.Millisecond
	recreateBackoff   = 10 * time.Second
)

// backend is the narrow capability a platform-specific port pair exposes;
// Device handles retry, recreate, and canonical-message translation on
// top of it so platform files stay a thin wrapper around gomidi/midi/v2.
type backend interface {
	Send(raw []byte) error
	Listen(onMessage func(raw []byte, timestampMS int32)) (stop func(), err error)
	Close() error
}

type openFunc func(identity wire.IdentityPacket) (backend, Variant, error)

// Device is a virtual MIDI input/output pair cloned from a physical
// device's identity. It satisfies internal/client.MidiSink.
type Device struct {
	identity wire.IdentityPacket
	open     openFunc
	logger   *log.Logger

	mu                  sync.Mutex
	backend             backend
	variant             Variant
	stopListen          func()
	closed              bool
	lastRecreateAttempt time.Time

	readCh chan wire.MidiMessage
}

// Open creates a Device using the best backend this build supports for
// the running platform (see openPlatform in the platform-tagged files),
// falling back to Null if none is compiled in.
func Open(identity wire.IdentityPacket, logger *log.Logger) (*Device, error) {
	return open(identity, openPlatform, logger)
}

// OpenNull creates a Device backed by the always-available in-memory
// Null variant — used by tests and headless hosts (spec §4.10).
func OpenNull(identity wire.IdentityPacket, logger *log.Logger) (*Device, error) {
	return open(identity, openNullBackend, logger)
}

func open(identity wire.IdentityPacket, of openFunc, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = logging.New(logging.Options{Component: "vmidi"})
	}
	b, variant, err := of(identity)
	if err != nil {
		return nil, &DeviceError{Variant: variant, Op: "open", Err: err}
	}
	d := &Device{
		identity: identity,
		open:     of,
		logger:   logger.With("component", "vmidi", "variant", variant.String()),
		backend:  b,
		variant:  variant,
		readCh:   make(chan wire.MidiMessage, 256),
	}
	d.stopListen, err = b.Listen(d.onRaw)
	if err != nil {
		b.Close()
		return nil, &DeviceError{Variant: variant, Op: "listen", Err: err}
	}
	return d, nil
}

func (d *Device) onRaw(raw []byte, timestampMS int32) {
	msg, err := fromRaw(raw, uint64(timestampMS)*1_000_000)
	if err != nil {
		d.logger.Debug("dropped unparseable MIDI message", "err", err)
		return
	}
	select {
	case d.readCh <- msg:
	default:
		d.logger.Warn("read buffer full, dropping incoming MIDI message")
	}
}

// Variant reports which backend this Device opened with.
func (d *Device) Variant() Variant {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.variant
}

// Write sends msg out the device's output port, satisfying
// internal/client.MidiSink. On repeated failure it retries 3x with 1ms
// spacing, then attempts a single device recreate (at most once per 10s)
// before giving up — the failure policy spec §8 describes for virtual
// device writes.
func (d *Device) Write(msg wire.MidiMessage) error {
	raw, err := toRaw(msg)
	if err != nil {
		return err
	}
	return d.send(raw)
}

func (d *Device) send(raw []byte) error {
	var sendErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		d.mu.Lock()
		b := d.backend
		d.mu.Unlock()
		if sendErr = b.Send(raw); sendErr == nil {
			return nil
		}
		time.Sleep(writeRetrySpacing)
	}

	if !d.recreateDue() {
		return &DeviceError{Variant: d.Variant(), Op: "write", Err: sendErr}
	}
	d.logger.Warn("write failed after retries, recreating device", "err", sendErr)
	if err := d.recreate(); err != nil {
		return &DeviceError{Variant: d.Variant(), Op: "recreate", Err: err}
	}
	d.mu.Lock()
	b := d.backend
	d.mu.Unlock()
	if err := b.Send(raw); err != nil {
		return &DeviceError{Variant: d.Variant(), Op: "write-after-recreate", Err: err}
	}
	return nil
}

func (d *Device) recreateDue() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.lastRecreateAttempt) < recreateBackoff {
		return false
	}
	d.lastRecreateAttempt = time.Now()
	return true
}

func (d *Device) recreate() error {
	b, variant, err := d.open(d.identity)
	if err != nil {
		return err
	}
	stop, err := b.Listen(d.onRaw)
	if err != nil {
		b.Close()
		return err
	}

	d.mu.Lock()
	oldBackend, oldStop := d.backend, d.stopListen
	d.backend, d.variant, d.stopListen = b, variant, stop
	d.mu.Unlock()

	if oldStop != nil {
		oldStop()
	}
	if oldBackend != nil {
		oldBackend.Close()
	}
	return nil
}

// Read returns the next canonical MIDI message received on the device's
// input port, or (zero, false) if none is waiting — the non-blocking
// read() the spec's polymorphic capability calls for.
func (d *Device) Read() (wire.MidiMessage, bool) {
	select {
	case msg := <-d.readCh:
		return msg, true
	default:
		return wire.MidiMessage{}, false
	}
}

// Close emits an All Notes Off on every channel — the shutdown step §5
// requires of each virtual device before it's torn down — then releases
// the backend. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stop := d.stopListen
	b := d.backend
	d.mu.Unlock()

	for ch := uint8(1); ch <= 16; ch++ {
		_ = d.Write(wire.MidiMessage{Channel: ch, Kind: wire.ControlChange, Bytes: []byte{123, 0}})
	}
	if stop != nil {
		stop()
	}
	if b != nil {
		return b.Close()
	}
	return nil
}

var errNoBackendCompiled = errors.New("no platform MIDI backend compiled in")
