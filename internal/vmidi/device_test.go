package vmidi

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/wire"
)

func TestDeviceNullWriteAndInjectRead(t *testing.T) {
	d, err := OpenNull(wire.IdentityPacket{DeviceName: "Test Device"}, nil)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Write(wire.MidiMessage{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{60, 100}}))

	_, ok := d.Read()
	assert.False(t, ok, "null backend never echoes writes back")

	d.Inject([]byte{0x90, 60, 100}, 5)
	msg, ok := d.Read()
	require.True(t, ok)
	assert.Equal(t, wire.NoteOn, msg.Kind)
	assert.Equal(t, uint8(1), msg.Channel)

	_, ok = d.Read()
	assert.False(t, ok)
}

func TestDeviceCloseSendsAllNotesOff(t *testing.T) {
	fb := &failingCounterBackend{}
	d, err := open(wire.IdentityPacket{DeviceName: "Test Device"}, func(wire.IdentityPacket) (backend, Variant, error) {
		return fb, VariantNull, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.Equal(t, int32(16), fb.sendCount.Load())

	// Safe to close twice.
	require.NoError(t, d.Close())
	assert.Equal(t, int32(16), fb.sendCount.Load())
}

// failingCounterBackend fails its first failUntil sends, then succeeds;
// it records every successful send.
type failingCounterBackend struct {
	mu        sync.Mutex
	failUntil int32
	attempts  int32
	sendCount atomic.Int32
}

func (b *failingCounterBackend) Send(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.attempts <= b.failUntil {
		return errors.New("simulated send failure")
	}
	b.sendCount.Add(1)
	return nil
}

func (b *failingCounterBackend) Listen(onMessage func([]byte, int32)) (func(), error) {
	return func() {}, nil
}

func (b *failingCounterBackend) Close() error { return nil }

func TestDeviceWriteRetriesThenFails(t *testing.T) {
	fb := &failingCounterBackend{failUntil: 100} // always fails within the 3 retries
	d, err := open(wire.IdentityPacket{}, func(wire.IdentityPacket) (backend, Variant, error) {
		return fb, VariantNull, nil
	}, nil)
	require.NoError(t, err)
	defer d.Close()

	// First write fails after 3 retries; recreate is due (lastRecreateAttempt
	// is zero) so it also attempts one recreate, which opens the same
	// always-failing backend and fails too.
	err = d.Write(wire.MidiMessage{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{60, 100}})
	assert.Error(t, err)
}

func TestDeviceWriteSucceedsAfterTransientFailures(t *testing.T) {
	fb := &failingCounterBackend{failUntil: 2} // fails twice, then succeeds
	d, err := open(wire.IdentityPacket{}, func(wire.IdentityPacket) (backend, Variant, error) {
		return fb, VariantNull, nil
	}, nil)
	require.NoError(t, err)
	defer d.Close()

	err = d.Write(wire.MidiMessage{Channel: 1, Kind: wire.NoteOn, Bytes: []byte{60, 100}})
	assert.NoError(t, err)
}
