package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakolsound/midinet/internal/wire"
)

func pktSeq(seq uint32) *wire.MidiDataPacket {
	return &wire.MidiDataPacket{Seq: seq}
}

func TestJitterBufferZeroDepthReleasesImmediately(t *testing.T) {
	j := newJitterBuffer(0)
	now := time.Now()
	ready := j.Push(pktSeq(5), now)
	require.Len(t, ready, 1)
	assert.Equal(t, uint32(5), ready[0].Seq)
}

func TestJitterBufferReordersWithinDepth(t *testing.T) {
	j := newJitterBuffer(20 * time.Millisecond)
	start := time.Now()

	assert.Empty(t, j.Push(pktSeq(1), start))                       // holds, waiting for a possible seq 0
	assert.Empty(t, j.Push(pktSeq(0), start.Add(time.Millisecond))) // still within depth: holds both

	ready := j.Tick(start.Add(25 * time.Millisecond))
	var seqs []uint32
	for _, p := range ready {
		seqs = append(seqs, p.Seq)
	}
	assert.Equal(t, []uint32{0, 1}, seqs)
}

func TestJitterBufferTimesOutAGap(t *testing.T) {
	j := newJitterBuffer(10 * time.Millisecond)
	start := time.Now()

	assert.Empty(t, j.Push(pktSeq(1), start)) // seq 0 never arrives
	ready := j.Tick(start.Add(15 * time.Millisecond))
	require.Len(t, ready, 1)
	assert.Equal(t, uint32(1), ready[0].Seq)
}

func TestJitterBufferDropsDuplicate(t *testing.T) {
	j := newJitterBuffer(0)
	now := time.Now()
	j.Push(pktSeq(3), now)
	ready := j.Push(pktSeq(3), now)
	assert.Empty(t, ready)
}
