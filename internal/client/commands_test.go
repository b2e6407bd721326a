package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/wire"
)

func TestCommandsTriggerFailoverRequiresMonitor(t *testing.T) {
	c := NewCommands(nil, nil)
	assert.Error(t, c.TriggerFailover(context.Background()))
}

func TestCommandsTriggerFailoverSwitchesStream(t *testing.T) {
	cfg := Config{
		Primary:       StreamAddrs{Data: freeAddr(t), Heartbeat: freeAddr(t)},
		Standby:       StreamAddrs{Data: freeAddr(t), Heartbeat: freeAddr(t)},
		Control:       freeAddr(t),
		SwitchLockout: 0,
	}
	m, err := New(cfg, &fakeSink{}, nil)
	require.NoError(t, err)
	defer m.Close()

	c := NewCommands(m, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.TriggerFailover(ctx))
	assert.Eventually(t, func() bool { return m.Active() == wire.StreamStandby }, time.Second, 5*time.Millisecond)
}

func TestCommandsClaimFocusRequiresClaimant(t *testing.T) {
	c := NewCommands(nil, nil)
	_, err := c.ClaimFocus(context.Background(), false)
	assert.Error(t, err)
}

func TestCommandsReleaseFocusRequiresClaimant(t *testing.T) {
	c := NewCommands(nil, nil)
	assert.Error(t, c.ReleaseFocus())
}
