// Package concurrency provides bounded worker pools over slices.
package concurrency

import (
	"context"
	"sync"
)

type Options struct {
	// Workers is the pool size; values <= 0 fall back to DefaultWorkers.
	Workers int
}

const DefaultWorkers = 4

func (o Options) workers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = DefaultWorkers
	}
	if w > n {
		w = n
	}
	return w
}

// Outcome pairs the result of one item with its error.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items on a bounded pool and returns one outcome per item,
// in input order. Items not started before ctx is done get ctx.Err().
func Map[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, i int, item T) (R, error)) []Outcome[R] {
	out := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return out
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := opts.workers(len(items)); w > 0; w-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					out[i].Err = err
					continue
				}
				v, err := fn(ctx, i, items[i])
				out[i] = Outcome[R]{Value: v, Err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// Errors returns the non-nil errors of outcomes, in input order.
func Errors[R any](outcomes []Outcome[R]) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
