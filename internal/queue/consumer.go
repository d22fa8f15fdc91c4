// Package queue consumes job ids from the Redis jobs list. Delivery is
// at-least-once: the id is popped before execution and never requeued
// by the worker, duplicates are the producer's and Redis' business.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
)

// Executor runs one job to its terminal state. It must not panic and
// must return normally regardless of the job outcome.
type Executor interface {
	Execute(ctx context.Context, jobID string)
}

// NewClient connects to Redis from a URL of the form
// redis://[:password@]host:port[/db].
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Consumer blocks on the jobs list and dispatches each id to the
// executor on its own goroutine, bounded by a resizable concurrency
// gate. Stopping the context ends the pop loop; running jobs keep their
// own uncancelled context and are awaited before Run returns.
type Consumer struct {
	client     *redis.Client
	jobsKey    string
	executor   Executor
	logger     arbor.ILogger
	processOne bool

	mu     sync.Mutex
	cond   *sync.Cond
	limit  int
	active int

	wg sync.WaitGroup
}

func NewConsumer(client *redis.Client, jobsKey string, executor Executor, concurrency int, processOne bool, logger arbor.ILogger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	c := &Consumer{
		client:     client,
		jobsKey:    jobsKey,
		executor:   executor,
		logger:     logger,
		processOne: processOne,
		limit:      concurrency,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetConcurrency reapplies the worker concurrency without touching
// in-flight jobs. Raising the limit wakes the pop loop immediately;
// lowering it only affects future dispatches.
func (c *Consumer) SetConcurrency(limit int) {
	if limit < 1 {
		limit = 1
	}
	c.mu.Lock()
	old := c.limit
	c.limit = limit
	c.mu.Unlock()
	c.cond.Broadcast()

	c.logger.Info().
		Int("old", old).
		Int("new", limit).
		Msg("Worker concurrency updated")
}

// Run consumes until ctx is cancelled, then waits for in-flight jobs.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().
		Str("key", c.jobsKey).
		Int("concurrency", c.currentLimit()).
		Bool("process_one_job", c.processOne).
		Msg("Queue consumer started")

	// Wake any acquireSlot waiter when the context dies
	stop := context.AfterFunc(ctx, c.cond.Broadcast)
	defer stop()

	for ctx.Err() == nil {
		if !c.acquireSlot(ctx) {
			break
		}

		result, err := c.client.BLPop(ctx, 0, c.jobsKey).Result()
		if err != nil {
			c.releaseSlot()
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				break
			}
			c.logger.Warn().Err(err).Msg("Queue pop failed, backing off")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		// BLPop returns [key, payload]
		jobID := strings.TrimSpace(result[1])
		if _, err := uuid.Parse(jobID); err != nil {
			c.releaseSlot()
			c.logger.Warn().
				Str("payload", jobID).
				Msg("Dropping unparseable job message")
			continue
		}

		c.logger.Info().Str("job_id", jobID).Msg("Dispatching job")

		c.wg.Add(1)
		go func(id string) {
			defer c.wg.Done()
			defer c.releaseSlot()
			// A shutdown signal must not cancel a running job
			c.executor.Execute(context.WithoutCancel(ctx), id)
		}(jobID)

		if c.processOne {
			break
		}
	}

	c.wg.Wait()
	c.logger.Info().Msg("Queue consumer stopped")
	return nil
}

// acquireSlot blocks until a dispatch slot is free. Returns false when
// the context died while waiting.
func (c *Consumer) acquireSlot(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.active >= c.limit {
		if ctx.Err() != nil {
			return false
		}
		c.cond.Wait()
	}
	if ctx.Err() != nil {
		return false
	}
	c.active++
	return true
}

func (c *Consumer) releaseSlot() {
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Consumer) currentLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}
