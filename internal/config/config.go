// Package config loads and hot-reloads MIDInet's YAML configuration
// (spec.md §6.2): everything is read once at process start, except the
// pipeline.stages[] and failover.* sub-trees, which a Watcher re-reads
// whenever its poll sees a changed file mtime and republishes through a read-copy-update
// pointer — the same atomic-pointer-swap contract internal/pipeline's
// own Publisher uses for the hot-reload path it feeds. YAML decoding
// follows the teacher's src/deviceid.go use of gopkg.in/yaml.v3;
// command-line overrides use the teacher's cmd/direwolf flag surface,
// built on its own already-declared github.com/spf13/pflag.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HostConfig is the `host.*` sub-tree.
type HostConfig struct {
	ID   uint16 `yaml:"id"`
	Name string `yaml:"name"`
}

// NetworkConfig is the `network.*` sub-tree.
type NetworkConfig struct {
	MulticastGroup string `yaml:"multicast_group"`
	DataPort       int    `yaml:"data_port"`
	HeartbeatPort  int    `yaml:"heartbeat_port"`
	ControlGroup   string `yaml:"control_group"`
	ControlPort    int    `yaml:"control_port"`
	Interface      string `yaml:"interface"`
}

// HeartbeatConfig is the `heartbeat.*` sub-tree.
type HeartbeatConfig struct {
	IntervalMS    int `yaml:"interval_ms"`
	MissThreshold int `yaml:"miss_threshold"`
}

// MidiConfig is the `midi.*` sub-tree. Device is "auto", "auto:<name>",
// or an explicit OS device identifier, per spec.md §6.2.
type MidiConfig struct {
	Device string `yaml:"device"`
}

// MidiTriggerConfig is `failover.triggers.midi.*`.
type MidiTriggerConfig struct {
	Enabled           bool  `yaml:"enabled"`
	Channel           uint8 `yaml:"channel"`
	Note              uint8 `yaml:"note"`
	VelocityThreshold uint8 `yaml:"velocity_threshold"`
	GuardNote         uint8 `yaml:"guard_note"`
}

// OSCTriggerConfig is `failover.triggers.osc.*`.
type OSCTriggerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ListenPort     int      `yaml:"listen_port"`
	Address        string   `yaml:"address"`
	AllowedSources []string `yaml:"allowed_sources"`
}

// TriggersConfig is `failover.triggers.*`.
type TriggersConfig struct {
	Midi MidiTriggerConfig `yaml:"midi"`
	OSC  OSCTriggerConfig  `yaml:"osc"`
}

// FailoverConfig is the `failover.*` sub-tree — hot-reload aware.
type FailoverConfig struct {
	AutoEnabled      bool           `yaml:"auto_enabled"`
	SwitchBackPolicy string         `yaml:"switch_back_policy"` // "manual" | "auto"
	LockoutSeconds   int            `yaml:"lockout_seconds"`
	ConfirmationMode string         `yaml:"confirmation_mode"` // "immediate" | "confirm"
	Triggers         TriggersConfig `yaml:"triggers"`
}

// FocusConfig is the `focus.*` sub-tree.
type FocusConfig struct {
	AutoClaim bool  `yaml:"auto_claim"`
	LeaseMS   int64 `yaml:"lease_ms"`
}

// StageConfig is one entry of `pipeline.stages[]` — hot-reload aware.
// Kind selects which pipeline.Stage type BuildPipeline constructs; Params holds
// that stage's fields as a loosely-typed YAML map, decoded on demand so
// adding a new stage kind never requires touching this struct.
type StageConfig struct {
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params"`
}

// PipelineConfig is the `pipeline.*` sub-tree — hot-reload aware.
type PipelineConfig struct {
	Stages []StageConfig `yaml:"stages"`
}

// File is the top-level YAML document shape.
type File struct {
	Host      HostConfig      `yaml:"host"`
	Network   NetworkConfig   `yaml:"network"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Midi      MidiConfig      `yaml:"midi"`
	Failover  FailoverConfig  `yaml:"failover"`
	Focus     FocusConfig     `yaml:"focus"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// Load reads and parses path into a File. It does not apply defaults;
// callers combine it with command-line overrides via pflag before
// handing the result to the components that consume it.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return &f, nil
}
