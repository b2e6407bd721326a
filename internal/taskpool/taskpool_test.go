package taskpool

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDefaultSize(t *testing.T) {
	p, _ := New(context.Background())
	defer p.Cancel()
	assert.Equal(t, max(2, runtime.NumCPU()), p.Size())
}

func TestPoolWithSize(t *testing.T) {
	p, _ := New(context.Background(), WithSize(7))
	defer p.Cancel()
	assert.Equal(t, 7, p.Size())
}

func TestPoolWaitReturnsFirstError(t *testing.T) {
	p, _ := New(context.Background())
	wantErr := errors.New("boom")
	p.Go(func(ctx context.Context) error { return wantErr })
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return context.Canceled
	})
	err := p.Wait()
	assert.ErrorIs(t, err, wantErr)
}

func TestPoolCancelStopsTasks(t *testing.T) {
	p, _ := New(context.Background())
	started := make(chan struct{})
	p.Go(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return context.Canceled
	})
	<-started
	p.Cancel()
	require.NoError(t, p.Wait())
}

func TestPoolEventsDeliveredInOrder(t *testing.T) {
	p, _ := New(context.Background())
	defer p.Cancel()

	p.Publish(Event{Kind: "one"})
	p.Publish(Event{Kind: "two"})

	select {
	case evt := <-p.Events():
		assert.Equal(t, "one", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	select {
	case evt := <-p.Events():
		assert.Equal(t, "two", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPoolPublishDropsOldestWhenSaturated(t *testing.T) {
	p, _ := New(context.Background(), WithQueueDepth(2))
	defer p.Cancel()

	p.Publish(Event{Kind: "a"})
	p.Publish(Event{Kind: "b"})
	p.Publish(Event{Kind: "c"}) // queue full at 2; "a" should be dropped

	first := <-p.Events()
	second := <-p.Events()
	assert.Equal(t, "b", first.Kind)
	assert.Equal(t, "c", second.Kind)
}
