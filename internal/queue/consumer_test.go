package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeExecutor struct {
	mu      sync.Mutex
	ids     []string
	started chan string
	release chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, jobID string) {
	f.mu.Lock()
	f.ids = append(f.ids, jobID)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- jobID
	}
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeExecutor) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func newTestQueue(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop in time")
	}
}

func TestConsumerProcessOneJob(t *testing.T) {
	client, mr := newTestQueue(t)
	jobID := uuid.New().String()
	mr.Lpush("jobs", jobID)

	executor := &fakeExecutor{}
	consumer := NewConsumer(client, "jobs", executor, 1, true, arbor.NewLogger())

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()
	waitDone(t, done)

	assert.Equal(t, []string{jobID}, executor.executed())
}

func TestConsumerDropsUnparseablePayload(t *testing.T) {
	client, mr := newTestQueue(t)
	jobID := uuid.New().String()
	mr.Lpush("jobs", jobID)
	mr.Lpush("jobs", "definitely-not-a-uuid")

	executor := &fakeExecutor{}
	// The bad payload is popped first, dropped, and the loop continues
	consumer := NewConsumer(client, "jobs", executor, 1, true, arbor.NewLogger())

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()
	waitDone(t, done)

	assert.Equal(t, []string{jobID}, executor.executed())
}

func TestConsumerShutdownWaitsForInFlightJob(t *testing.T) {
	client, mr := newTestQueue(t)
	jobID := uuid.New().String()
	mr.Lpush("jobs", jobID)

	executor := &fakeExecutor{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	consumer := NewConsumer(client, "jobs", executor, 1, false, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	require.Equal(t, jobID, <-executor.started)
	cancel()

	select {
	case <-done:
		t.Fatal("consumer stopped while a job was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(executor.release)
	waitDone(t, done)
	assert.Equal(t, []string{jobID}, executor.executed())
}

func TestConsumerConcurrencyRaisedWithoutDroppingWork(t *testing.T) {
	client, mr := newTestQueue(t)
	first := uuid.New().String()
	second := uuid.New().String()
	mr.Lpush("jobs", second)
	mr.Lpush("jobs", first)

	executor := &fakeExecutor{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	consumer := NewConsumer(client, "jobs", executor, 1, false, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	// With concurrency 1 only the first job may start
	require.Equal(t, first, <-executor.started)
	select {
	case id := <-executor.started:
		t.Fatalf("job %s started beyond the concurrency limit", id)
	case <-time.After(100 * time.Millisecond):
	}

	// Raising the limit must dispatch the queued job while the first is
	// still running
	consumer.SetConcurrency(2)
	require.Equal(t, second, <-executor.started)

	close(executor.release)
	cancel()
	client.Close()
	waitDone(t, done)
	assert.ElementsMatch(t, []string{first, second}, executor.executed())
}
