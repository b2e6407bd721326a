package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsApplyOnlyOverridesChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fl := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--host-id", "7"}))

	f := &File{Host: HostConfig{ID: 1, Name: "original"}}
	fl.Apply(fs, f)

	assert.Equal(t, uint16(7), f.Host.ID)
	assert.Equal(t, "original", f.Host.Name)
}

func TestFlagsApplyMidiDeviceOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fl := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--midi-device", "auto:Elektron"}))

	f := &File{Midi: MidiConfig{Device: "auto"}}
	fl.Apply(fs, f)

	assert.Equal(t, "auto:Elektron", f.Midi.Device)
}
