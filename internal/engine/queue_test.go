package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/versync/internal/ir"
)

func inboundEvent(node ir.NodeID) Event {
	return Event{Type: EventTypeInbound, Message: &ir.Message{Op: ir.OpNodeDestroy, Node: node}}
}

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(inboundEvent(70))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, EventTypeInbound, got.Type)
	assert.Equal(t, ir.NodeID(70), got.Message.Node)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for i := 1; i <= 3; i++ {
		q.Enqueue(inboundEvent(ir.NodeID(i)))
	}

	for i := 1; i <= 3; i++ {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, ir.NodeID(i), e.Message.Node)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(inboundEvent(1))
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not signal after enqueue")
	}
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(inboundEvent(1))
	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(inboundEvent(2)), "enqueue after close should return false")

	// Closed signal channel fires immediately.
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not fire after close")
	}

	// Already queued events are still delivered.
	e, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, ir.NodeID(1), e.Message.Node)
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()

	assert.Equal(t, 0, q.Len())
	q.Enqueue(inboundEvent(1))
	q.Enqueue(inboundEvent(2))
	assert.Equal(t, 2, q.Len())
	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(inboundEvent(ir.NodeID(producerID*1000 + i)))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[ir.NodeID]bool)
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[e.Message.Node] = true
	}
	assert.Len(t, seen, producers*eventsPerProducer)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "local", EventTypeLocal.String())
	assert.Equal(t, "inbound", EventTypeInbound.String())
	assert.Equal(t, "unknown", EventType(0).String())
}
