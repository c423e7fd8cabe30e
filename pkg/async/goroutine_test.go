package async

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestSafeGo_Success(t *testing.T) {
	ctx := context.Background()
	executed := atomic.Bool{}

	SafeGo(ctx, 1*time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	time.Sleep(100 * time.Millisecond)

	if !executed.Load() {
		t.Error("SafeGo did not execute function")
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	ctx := context.Background()
	completed := atomic.Bool{}

	SafeGo(ctx, 50*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			completed.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	time.Sleep(150 * time.Millisecond)

	if completed.Load() {
		t.Error("Function should have been canceled by timeout")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), 1*time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		panic("test panic")
	})

	time.Sleep(100 * time.Millisecond)

	if !executed.Load() {
		t.Error("SafeGo did not execute function before panic")
	}
}

func itoa(i int) string { return strconv.Itoa(i) }

func TestBatch_AllSucceed(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	var sum atomic.Int64

	res := Batch(context.Background(), items, 3, "sum", time.Second, itoa, func(ctx context.Context, i int) error {
		sum.Add(int64(i))
		return nil
	})

	if res.Succeeded != 10 {
		t.Errorf("Expected 10 successes, got %d", res.Succeeded)
	}
	if len(res.Failures) != 0 {
		t.Errorf("Expected no failures, got %v", res.Failures)
	}
	if sum.Load() != 55 {
		t.Errorf("Expected sum 55, got %d", sum.Load())
	}
	if res.Err() != nil {
		t.Errorf("Expected nil Err, got %v", res.Err())
	}
}

func TestBatch_FailuresAreIsolated(t *testing.T) {
	items := []int{1, 2, 3, 4}
	boom := errors.New("boom")

	res := Batch(context.Background(), items, 2, "isolate", time.Second, itoa, func(ctx context.Context, i int) error {
		if i == 2 {
			return boom
		}
		if i == 3 {
			panic("kaboom")
		}
		return nil
	})

	if res.Succeeded != 2 {
		t.Errorf("Expected 2 successes, got %d", res.Succeeded)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(res.Failures))
	}
	if res.Total() != 4 {
		t.Errorf("Expected total 4, got %d", res.Total())
	}

	keys := map[string]bool{}
	for _, f := range res.Failures {
		keys[f.Key] = true
	}
	if !keys["2"] || !keys["3"] {
		t.Errorf("Expected failures for keys 2 and 3, got %v", res.Failures)
	}
	if !errors.Is(res.Err(), boom) {
		t.Errorf("Expected joined error to wrap boom, got %v", res.Err())
	}
}

func TestBatch_PerItemTimeout(t *testing.T) {
	items := []int{1, 2}

	start := time.Now()
	res := Batch(context.Background(), items, 2, "slow", 50*time.Millisecond, itoa, func(ctx context.Context, i int) error {
		if i == 1 {
			time.Sleep(time.Second)
		}
		return nil
	})

	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Batch should not wait for a timed-out item")
	}
	if res.Succeeded != 1 || len(res.Failures) != 1 {
		t.Fatalf("Expected 1 success and 1 failure, got %d/%d", res.Succeeded, len(res.Failures))
	}
	if !errors.Is(res.Failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", res.Failures[0].Err)
	}
}

func TestBatch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Batch(ctx, []int{1, 2, 3}, 2, "canceled", time.Second, itoa, func(ctx context.Context, i int) error {
		return nil
	})

	if res.Succeeded != 0 {
		t.Errorf("Expected no successes, got %d", res.Succeeded)
	}
	if len(res.Failures) != 3 {
		t.Errorf("Expected 3 failures, got %d", len(res.Failures))
	}
}

func TestBatch_Empty(t *testing.T) {
	res := Batch(context.Background(), []int{}, 4, "empty", time.Second, itoa, func(ctx context.Context, i int) error {
		return nil
	})

	if res.Total() != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}
