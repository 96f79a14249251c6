package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albert-ai/loopguard/pkg/schema"
)

func recv(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		WorkflowID: "wf-1",
		LoopID:     "loop-1",
		EventType:  schema.EventLoopIterCompleted,
		Iteration:  2,
		Payload:    map[string]any{"similarity": 0.5},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := recv(t, ch)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "loop-1", got.LoopID)
	assert.Equal(t, schema.EventLoopIterCompleted, got.EventType)
	assert.Equal(t, 2, got.Iteration)
	assert.False(t, got.Timestamp.IsZero(), "publish stamps missing timestamps")
}

func TestFilterByWorkflowID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", LoopID: "l1", EventType: schema.EventLoopStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-2", LoopID: "l2", EventType: schema.EventLoopStarted}))

	assert.Equal(t, "wf-1", recv(t, ch).WorkflowID)
	assertQuiet(t, ch)
}

func TestFilterByLoopID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{LoopID: "l2"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopExited}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l2", EventType: schema.EventLoopExited}))

	assert.Equal(t, "l2", recv(t, ch).LoopID)
	assertQuiet(t, ch)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{schema.EventLoopExited, schema.EventLoopCancelled},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopExited}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopIterCompleted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopCancelled}))

	received := []string{recv(t, ch).EventType, recv(t, ch).EventType}
	assert.Equal(t, []string{schema.EventLoopExited, schema.EventLoopCancelled}, received)
	assertQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	assert.Equal(t, 2, hub.Subscribers())
	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopStarted}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		got := recv(t, ch)
		assert.Equal(t, "l1", got.LoopID)
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopStarted}))

	_, open := <-ch
	assert.False(t, open, "channel is closed after cancel")
	assert.Zero(t, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopIterCompleted, Iteration: i}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, defaultChannelBuffer, drained)
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup
	cancels := make([]func(), goroutines)
	for i := range goroutines {
		_, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range eventsPerGoroutine {
				_ = hub.Publish(ctx, StreamEvent{LoopID: "l-concurrent", EventType: schema.EventLoopIterCompleted, Iteration: j})
			}
		}()
	}

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{LoopID: "l1", EventType: schema.EventLoopStarted})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
