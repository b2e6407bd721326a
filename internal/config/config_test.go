package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
host:
  id: 1
  name: studio-a
network:
  multicast_group: 239.69.83.1
  data_port: 5004
  heartbeat_port: 5005
  control_group: 239.69.83.100
  control_port: 5006
midi:
  device: auto
failover:
  auto_enabled: true
  switch_back_policy: manual
  lockout_seconds: 5
  confirmation_mode: immediate
  triggers:
    midi:
      enabled: true
      channel: 16
      note: 0
      velocity_threshold: 100
    osc:
      enabled: false
      listen_port: 8000
      address: /midinet/failover/switch
focus:
  auto_claim: false
  lease_ms: 10000
pipeline:
  stages:
    - kind: channel_filter
      params:
        Mask: 1
    - kind: velocity_curve
      params:
        Kind: 3
        Fixed: 100
`

func writeSample(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "midinet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeSample(t, t.TempDir(), sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), f.Host.ID)
	assert.Equal(t, "studio-a", f.Host.Name)
	assert.Equal(t, "239.69.83.1", f.Network.MulticastGroup)
	assert.True(t, f.Failover.AutoEnabled)
	assert.Equal(t, "manual", f.Failover.SwitchBackPolicy)
	assert.True(t, f.Failover.Triggers.Midi.Enabled)
	assert.Equal(t, uint8(16), f.Failover.Triggers.Midi.Channel)
	assert.False(t, f.Focus.AutoClaim)
	assert.Equal(t, int64(10000), f.Focus.LeaseMS)
	require.Len(t, f.Pipeline.Stages, 2)
	assert.Equal(t, "channel_filter", f.Pipeline.Stages[0].Kind)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildPipelineDecodesKnownStages(t *testing.T) {
	path := writeSample(t, t.TempDir(), sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	p, err := BuildPipeline(f.Pipeline)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)
}

func TestBuildPipelineRejectsUnknownKind(t *testing.T) {
	cfg := PipelineConfig{Stages: []StageConfig{{Kind: "not_a_real_stage"}}}
	_, err := BuildPipeline(cfg)
	assert.Error(t, err)
}
