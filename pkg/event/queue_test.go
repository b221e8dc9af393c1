package event

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_OrderPreserved(t *testing.T) {
	q := NewQueue(16)
	ctx := context.Background()

	go func() {
		for i := 0; i < 10; i++ {
			_ = q.Publish(ctx, TaskMessage("task-1", fmt.Sprintf("msg-%d", i), false))
		}
		q.Close()
	}()

	var got []string
	for e := range q.Events() {
		got = append(got, e.Message)
	}

	require.Len(t, got, 10)
	for i, msg := range got {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg)
	}
}

func TestQueue_PublishBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, TaskStatus("t", "working")))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Publish(ctx, TaskStatus("t", "working"))
	}()

	select {
	case <-blocked:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	// Draining unblocks the producer; nothing was dropped.
	<-q.Events()
	require.NoError(t, <-blocked)
	<-q.Events()
}

func TestQueue_TryPublishNeverBlocks(t *testing.T) {
	q := NewQueue(1)

	assert.True(t, q.TryPublish(TaskStatus("t", "working")))
	assert.False(t, q.TryPublish(TaskStatus("t", "working")), "full queue rejects instead of blocking")

	<-q.Events()
	assert.True(t, q.TryPublish(TaskDone("t", "completed")))
}

func TestQueue_PublishCancelled(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(context.Background(), TaskStatus("t", "working")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Publish(ctx, TaskStatus("t", "working"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_CloseIsSentinelAndIdempotent(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Publish(context.Background(), TaskDone("t", "completed")))

	q.Close()
	q.Close() // second close is a no-op

	e, ok := <-q.Events()
	require.True(t, ok)
	assert.Equal(t, TypeTaskDone, e.Type)

	_, ok = <-q.Events()
	assert.False(t, ok, "channel close is the sentinel")
}

func TestEventConstructors(t *testing.T) {
	e := ChainFailed("task-1", "chain-1", "reasoning_failed", "boom")
	assert.Equal(t, TypeChainFailed, e.Type)
	assert.Equal(t, "task-1", e.TaskID)
	assert.Equal(t, "chain-1", e.ChainID)
	assert.Equal(t, "reasoning_failed", e.ErrorCode)
	assert.False(t, e.Timestamp.IsZero())

	done := TaskDone("task-1", "failed")
	assert.Equal(t, "failed", done.State)
}
