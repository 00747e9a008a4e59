package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRoutesJobsByType(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2})
	done := make(chan string, 2)
	q.Handle("a", func(ctx context.Context, job Job) error {
		done <- "a:" + job.Payload.(string)
		return nil
	})
	q.Handle("b", func(ctx context.Context, job Job) error {
		done <- "b:" + job.Payload.(string)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue("a", "one"))
	require.NoError(t, q.Enqueue("b", "two"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-done:
			got[v] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	require.True(t, got["a:one"])
	require.True(t, got["b:two"])
}

func TestQueueRejectsUnknownTypeAndUnstarted(t *testing.T) {
	q := NewQueue("test", QueueConfig{})
	q.Handle("known", func(ctx context.Context, job Job) error { return nil })
	require.Error(t, q.Enqueue("known", nil))

	q.Start(context.Background())
	defer q.Stop()
	require.Error(t, q.Enqueue("unknown", nil))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	q := NewQueue("test", QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	var calls int32
	succeeded := make(chan struct{})
	q.Handle("flaky", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		close(succeeded)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue("flaky", nil))
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
