package tasks

import "context"

// TaskRunnerInterface runs a batch of tasks to completion.
// Example usage:
//
//	runner := NewRunner(workerCount)
//	err := runner.Run(ctx, []TaskInterface{NewConvertFeedTask(...)})
type TaskRunnerInterface interface {
	Run(ctx context.Context, tasks []TaskInterface) error
}
