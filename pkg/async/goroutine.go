package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine bounded by timeout. Panics are recovered and
// errors are logged; nothing is reported back to the caller.
//
// Example:
//
//	SafeGo(ctx, 10*time.Second, "metrics recompute", func(ctx context.Context) error {
//	    _, err := collector.Compute(ctx, providerID, time.Time{})
//	    return err
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logrus.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// ItemError records the failure of one batch item.
type ItemError struct {
	Key string
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult is the merged outcome of a Batch run.
type BatchResult struct {
	Succeeded int
	Failures  []ItemError
}

// Total returns the number of items processed.
func (r *BatchResult) Total() int {
	return r.Succeeded + len(r.Failures)
}

// Err joins all item failures, or returns nil when every item succeeded.
func (r *BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Batch processes items on a fixed number of workers. Each item gets its own
// context bounded by timeout, and a failing or panicking item never affects
// the others. key names an item in the returned failures.
//
// Example:
//
//	res := Batch(ctx, providers, 8, "daily metrics", 30*time.Second,
//	    func(p Provider) string { return strconv.FormatInt(p.ID, 10) },
//	    func(ctx context.Context, p Provider) error {
//	        _, err := collector.Compute(ctx, p.ID, day)
//	        return err
//	    })
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	key func(T) string, fn func(context.Context, T) error) *BatchResult {

	if workers < 1 {
		workers = 1
	}
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	workCh := make(chan T)
	var (
		mu     sync.Mutex
		result BatchResult
		wg     sync.WaitGroup
	)

	record := func(item T, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Succeeded++
			return
		}
		result.Failures = append(result.Failures, ItemError{Key: key(item), Err: err})
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				record(item, runItem(ctx, taskName, timeout, item, fn))
			}
		}()
	}

	for i, item := range items {
		if ctx.Err() != nil {
			// Items never dispatched are reported as failures.
			for _, rest := range items[i:] {
				record(rest, fmt.Errorf("%s not started: %w", taskName, ctx.Err()))
			}
			break
		}
		workCh <- item
	}
	close(workCh)
	wg.Wait()

	return &result
}

func runItem[T any](ctx context.Context, taskName string, timeout time.Duration, item T,
	fn func(context.Context, T) error) error {

	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so a timed-out item can still finish without blocking.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in batch item")
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(itemCtx, item)
	}()

	select {
	case err := <-done:
		return err
	case <-itemCtx.Done():
		return fmt.Errorf("%s timed out after %v: %w", taskName, timeout, itemCtx.Err())
	}
}
