package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ofdl/pkg/logger"
)

// DefaultWorkers is the pool width used when none is configured
const DefaultWorkers = 3

// Task is one unit of work. Key identifies it in logs and results.
type Task[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of a Task
type Result[T any] struct {
	Task     Task[T]
	Value    T
	Err      error
	Duration time.Duration
}

type job[T any] struct {
	task  Task[T]
	reply chan<- Result[T]
}

// WorkerPool runs tasks on a fixed number of workers. One pool can serve
// any number of RunAll batches between Start and Stop.
type WorkerPool[T any] struct {
	numWorkers int
	jobQueue   chan job[T]
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	logger     logger.Logger
}

// NewWorkerPool creates a pool whose workers stop picking up work once ctx
// is done.
func NewWorkerPool[T any](ctx context.Context, numWorkers int, log logger.Logger) *WorkerPool[T] {
	if numWorkers < 1 {
		numWorkers = DefaultWorkers
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool[T]{
		numWorkers: numWorkers,
		jobQueue:   make(chan job[T], numWorkers*2),
		ctx:        ctx,
		cancel:     cancel,
		logger:     log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool[T]) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop lets queued tasks finish and shuts the workers down. It is safe to
// call more than once.
func (wp *WorkerPool[T]) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.wg.Wait()
		wp.cancel()
		wp.logger.Debug("Worker pool stopped")
	})
}

// Submit queues task; its result is sent on reply, which must have room
// for it so workers never block.
func (wp *WorkerPool[T]) Submit(task Task[T], reply chan<- Result[T]) error {
	select {
	case wp.jobQueue <- job[T]{task: task, reply: reply}:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// RunAll runs tasks and returns their results in completion order. Tasks
// that could not be queued because the pool is shutting down are reported
// with an error instead of being dropped.
func (wp *WorkerPool[T]) RunAll(tasks []Task[T]) []Result[T] {
	reply := make(chan Result[T], len(tasks))
	results := make([]Result[T], 0, len(tasks))

	submitted := 0
	for _, task := range tasks {
		if err := wp.Submit(task, reply); err != nil {
			results = append(results, Result[T]{Task: task, Err: err})
			continue
		}
		submitted++
	}
	for i := 0; i < submitted; i++ {
		results = append(results, <-reply)
	}
	return results
}

func (wp *WorkerPool[T]) worker(id int) {
	defer wp.wg.Done()

	for j := range wp.jobQueue {
		if err := wp.ctx.Err(); err != nil {
			j.reply <- Result[T]{Task: j.task, Err: err}
			continue
		}

		start := time.Now()
		value, err := j.task.Run(wp.ctx)
		result := Result[T]{Task: j.task, Value: value, Err: err, Duration: time.Since(start)}

		if err != nil {
			wp.logger.DebugWithFields("Worker task failed", map[string]interface{}{
				"worker_id": id,
				"task":      j.task.Key,
				"error":     err.Error(),
			})
		}
		j.reply <- result
	}
}
