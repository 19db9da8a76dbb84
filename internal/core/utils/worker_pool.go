package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool applies worker to every input using at most maxWorkers
// goroutines. Results arrive in completion order and carry the index of their
// input; the channel is closed once all inputs are done. Inputs not yet
// started when ctx is cancelled complete with ctx.Err().
func RunInPool[In any, Out any](ctx context.Context, worker func(context.Context, In) (Out, error), inputs []In, maxWorkers int) <-chan CompletedTask[Out] {
	completed := make(chan CompletedTask[Out], len(inputs))

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	workers := min(len(inputs), max(maxWorkers, 1))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()

				for i := range queue {
					if err := ctx.Err(); err != nil {
						completed <- CompletedTask[Out]{Index: i, Error: err}
						continue
					}
					res, err := worker(ctx, inputs[i])
					completed <- CompletedTask[Out]{Index: i, Result: res, Error: err}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()

	return completed
}
