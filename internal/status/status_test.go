package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublisherDefaultsToEmptySnapshot(t *testing.T) {
	pub := NewPublisher(nil)
	snap := pub.Load()
	assert.Equal(t, uint16(0), snap.ActiveHost)
	assert.False(t, snap.HasFocus)
}

func TestPublisherStoreReplacesSnapshot(t *testing.T) {
	pub := NewPublisher(nil)
	pub.Store(&Snapshot{
		ActiveHost:   2,
		SwitchCount:  3,
		LastSwitchAt: time.Unix(1000, 0),
		HealthScore:  97,
	})
	snap := pub.Load()
	assert.Equal(t, uint16(2), snap.ActiveHost)
	assert.Equal(t, uint64(3), snap.SwitchCount)
	assert.Equal(t, 97, snap.HealthScore)
}

func TestPublisherConcurrentLoadDuringStore(t *testing.T) {
	pub := NewPublisher(&Snapshot{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			pub.Store(&Snapshot{SwitchCount: uint64(i)})
		}
	}()
	for i := 0; i < 1000; i++ {
		_ = pub.Load()
	}
	<-done
}
