package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, q.Len())
}

func TestJobQueue_PushFrontPrioritizesRetries(t *testing.T) {
	q := newJobQueue()
	q.Push("new1")
	q.Push("new2")
	q.PushFront("retry")

	ctx := context.Background()
	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "retry", got)
}

func TestJobQueue_PopBlocksUntilPush(t *testing.T) {
	q := newJobQueue()

	popped := make(chan string, 1)
	go func() {
		id, err := q.Pop(context.Background())
		if err == nil {
			popped <- id
		}
	}()

	select {
	case <-popped:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("late")
	select {
	case id := <-popped:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestJobQueue_PopHonorsCancellation(t *testing.T) {
	q := newJobQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after cancellation")
	}
}
