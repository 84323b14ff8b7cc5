package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskRunnerInterface = (*Runner)(nil)

const taskTimeout = 10 * time.Minute

// Runner executes each task once through a fixed pool of workers. There is
// no retry: a failed task is reported and the others keep running.
type Runner struct {
	workerCount int
}

func NewRunner(workerCount int) *Runner {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Runner{workerCount: workerCount}
}

// Run blocks until every task has finished and returns the joined errors of
// the failed ones.
func (r *Runner) Run(ctx context.Context, tasks []TaskInterface) error {
	taskQueue := make(chan TaskInterface)

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for i := 0; i < r.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for task := range taskQueue {
				if err := r.executeTask(ctx, id, task); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("feed %s: %w", task.GetFeedName(), err))
					mu.Unlock()
				}
			}
		}(i)
	}

enqueue:
	for _, task := range tasks {
		select {
		case taskQueue <- task:
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break enqueue
		}
	}
	close(taskQueue)
	wg.Wait()

	return errors.Join(errs...)
}

func (r *Runner) executeTask(ctx context.Context, workerID int, task TaskInterface) (err error) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	// A panicking task fails its feed only; the other workers keep going.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
			slog.Error("Worker task panicked", "worker_id", workerID, "id", task.GetID(), "feed", task.GetFeedName(), "error", err)
		}
	}()

	err = task.Execute(taskCtx)
	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "duration", task.GetDuration(), "error", err)
	}
	return err
}
