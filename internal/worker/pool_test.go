package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	counter *atomic.Int64
	fail    bool
}

type countingResult struct {
	err error
}

func (r *countingResult) GetError() error { return r.err }

func (j *countingJob) Execute(ctx context.Context) Result {
	j.counter.Add(1)
	if j.fail {
		return &countingResult{err: fmt.Errorf("job failed")}
	}
	return &countingResult{}
}

func TestPool_ExecutesAllJobs(t *testing.T) {
	var counter atomic.Int64

	pool := NewPool(4)
	pool.Start()

	for i := 0; i < 10; i++ {
		pool.Submit(&countingJob{counter: &counter, fail: i%3 == 0})
	}
	results := pool.Wait()

	if counter.Load() != 10 {
		t.Errorf("Executed %d jobs, want 10", counter.Load())
	}
	if len(results) != 10 {
		t.Errorf("Collected %d results, want 10", len(results))
	}

	failed := 0
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 4 {
		t.Errorf("Expected 4 failed results, got %d", failed)
	}
}

type blockingJob struct {
	started  chan struct{}
	observed chan error
}

func (j *blockingJob) Execute(ctx context.Context) Result {
	close(j.started)
	select {
	case <-ctx.Done():
		j.observed <- ctx.Err()
	case <-time.After(2 * time.Second):
		j.observed <- fmt.Errorf("job context never cancelled")
	}
	return &countingResult{}
}

func TestPool_CallerContextReachesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &blockingJob{
		started:  make(chan struct{}),
		observed: make(chan error, 1),
	}

	pool := NewPoolContext(ctx, 1)
	pool.Start()
	pool.Submit(job)

	<-job.started
	cancel()

	if err := <-job.observed; !errors.Is(err, context.Canceled) {
		t.Errorf("Job observed %v, want context.Canceled", err)
	}
	pool.Wait()
}

func TestPool_ZeroWorkersDefaultsToOne(t *testing.T) {
	var counter atomic.Int64

	pool := NewPool(0)
	pool.Start()
	pool.Submit(&countingJob{counter: &counter})
	results := pool.Wait()

	if len(results) != 1 || counter.Load() != 1 {
		t.Errorf("Pool with 0 workers should still run jobs: %d results", len(results))
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	limiter := NewLimiter(0.001, 1) // effectively one request, then a long wait

	if err := limiter.Wait(context.Background(), "openai"); err != nil {
		t.Fatalf("First request should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "openai"); err == nil {
		t.Error("Second request should fail when context expires before clearance")
	}
}

func TestLimiter_ProvidersAreIndependent(t *testing.T) {
	limiter := NewLimiter(0.001, 1)

	if !limiter.Allow("openai") {
		t.Error("First openai request should be allowed")
	}
	if limiter.Allow("openai") {
		t.Error("Second openai request should be throttled")
	}
	if !limiter.Allow("anthropic") {
		t.Error("Anthropic has its own bucket and should be allowed")
	}
}

func TestLimiter_SetProviderRate(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.SetProviderRate("ollama", 1000, 10)

	for i := 0; i < 5; i++ {
		if !limiter.Allow("ollama") {
			t.Fatalf("Request %d to ollama should be allowed with a generous custom rate", i)
		}
	}
}
