// Package scheduler runs batches of independent fetch operations under a
// bounded concurrency limit while keeping results aligned to input order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 8

// Work produces the result for the item at index.
type Work[T any] func(ctx context.Context, index int) (T, error)

// Result is the outcome of one slot.
type Result[T any] struct {
	Value T
	Err   error
}

// Observer receives batch lifecycle callbacks. Completed is invoked from lane
// goroutines as items finish, so implementations must be safe for concurrent
// use; completion order is not input order.
type Observer[T any] interface {
	Started(total int)
	Completed(index int, result Result[T])
	Finished(results []Result[T])
}

// Options controls a batch run.
type Options struct {
	// Concurrency caps the number of items in flight.
	Concurrency int
	// FailFast aborts the batch on the first failed item and returns no
	// results. When false every slot is attempted and failures are reported
	// per slot.
	FailFast bool
}

// ItemError identifies a failed slot.
type ItemError struct {
	Index int
	Err   error
}

// BatchError reports the slots that failed within a batch.
type BatchError struct {
	Total    int
	Failures []ItemError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("#%d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%d of %d items failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes the underlying item errors to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Failed reports whether the slot at index is among the failures.
func (e *BatchError) Failed(index int) bool {
	for _, f := range e.Failures {
		if f.Index == index {
			return true
		}
	}
	return false
}

// Run executes work for every index in [0, n) with at most opts.Concurrency
// items in flight. A fixed pool of lanes repeatedly claims the next unclaimed
// index, so results[i] always holds the outcome of index i.
//
// When any item fails the returned error is a *BatchError. In FailFast mode
// the remaining lanes are canceled and no results are returned.
func Run[T any](ctx context.Context, n int, work Work[T], opts Options, obs Observer[T]) ([]Result[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("scheduler: negative item count %d", n)
	}
	lanes := opts.Concurrency
	if lanes <= 0 {
		lanes = DefaultConcurrency
	}
	if lanes > n {
		lanes = n
	}
	if obs == nil {
		obs = nopObserver[T]{}
	}

	obs.Started(n)
	results := make([]Result[T], n)

	var g *errgroup.Group
	laneCtx := ctx
	if opts.FailFast {
		g, laneCtx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}

	var next atomic.Int64
	for lane := 0; lane < lanes; lane++ {
		g.Go(func() error {
			for {
				idx := int(next.Add(1) - 1)
				if idx >= n {
					return nil
				}
				if err := laneCtx.Err(); err != nil {
					results[idx] = Result[T]{Err: err}
					obs.Completed(idx, results[idx])
					if opts.FailFast {
						return err
					}
					continue
				}
				val, err := work(laneCtx, idx)
				results[idx] = Result[T]{Value: val, Err: err}
				obs.Completed(idx, results[idx])
				if err != nil && opts.FailFast {
					return &BatchError{Total: n, Failures: []ItemError{{Index: idx, Err: err}}}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			return nil, batchErr
		}
		return nil, &BatchError{Total: n, Failures: []ItemError{{Index: -1, Err: err}}}
	}

	obs.Finished(results)
	if failures := collectFailures(results); len(failures) > 0 {
		return results, &BatchError{Total: n, Failures: failures}
	}
	return results, nil
}

func collectFailures[T any](results []Result[T]) []ItemError {
	var failures []ItemError
	for i, r := range results {
		if r.Err != nil {
			failures = append(failures, ItemError{Index: i, Err: r.Err})
		}
	}
	sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
	return failures
}

type nopObserver[T any] struct{}

func (nopObserver[T]) Started(int) {}

func (nopObserver[T]) Completed(int, Result[T]) {}

func (nopObserver[T]) Finished([]Result[T]) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs[T any] struct {
	OnStarted   func(total int)
	OnCompleted func(index int, result Result[T])
	OnFinished  func(results []Result[T])
}

// Started implements Observer.
func (o ObserverFuncs[T]) Started(total int) {
	if o.OnStarted != nil {
		o.OnStarted(total)
	}
}

// Completed implements Observer.
func (o ObserverFuncs[T]) Completed(index int, result Result[T]) {
	if o.OnCompleted != nil {
		o.OnCompleted(index, result)
	}
}

// Finished implements Observer.
func (o ObserverFuncs[T]) Finished(results []Result[T]) {
	if o.OnFinished != nil {
		o.OnFinished(results)
	}
}
