package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJob(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 4})
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), Job{Action: "send", ChatID: 7, Run: func(context.Context) error {
		close(done)
		return nil
	}})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job not executed")
	}
	d.Close()
	assert.Equal(t, uint64(1), d.SentCount())
	assert.Equal(t, uint64(0), d.ErrorCount())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var outcome error = errors.New("unset")

	d := NewDispatcher(Options{
		Workers:      1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnResult: func(_ string, err error) {
			mu.Lock()
			outcome = err
			mu.Unlock()
		},
	})
	require.NoError(t, d.Enqueue(context.Background(), Job{Action: "send", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}}))
	d.Close()

	assert.Equal(t, int32(3), calls.Load())
	mu.Lock()
	assert.NoError(t, outcome)
	mu.Unlock()
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, d.Enqueue(context.Background(), Job{Action: "send", Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	}}))
	d.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	defer func() {
		close(release)
		d.Close()
	}()

	block := Job{Action: "block", Run: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}
	require.NoError(t, d.Enqueue(context.Background(), block))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), Job{Action: "queued", Run: func(context.Context) error { return nil }}))

	err := d.Enqueue(context.Background(), Job{Action: "overflow", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatcherClosedRejects(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	err := d.Enqueue(context.Background(), Job{Action: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatcherDetachesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	d := NewDispatcher(Options{Workers: 1})
	require.NoError(t, d.Enqueue(ctx, Job{Action: "send", Run: func(jobCtx context.Context) error {
		ran <- jobCtx.Err()
		return nil
	}}))
	cancel()
	d.Close()
	assert.NoError(t, <-ran)
}
