// Package async provides safe concurrent execution primitives for background
// and per-provider work.
//
// # Overview
//
// SafeGo runs a fire-and-forget task with a timeout and panic recovery. It is
// used for the throttled recompute that follows real-time tracking.
//
//	async.SafeGo(ctx, 10*time.Second, "metrics recompute", func(ctx context.Context) error {
//		return recompute(ctx)
//	})
//
// Batch fans a slice of items out to a fixed number of workers. Every item
// runs under its own timeout; failures, timeouts and panics are captured per
// item and merged into one BatchResult.
//
//	res := async.Batch(ctx, providers, 8, "daily metrics", 30*time.Second, keyOf, process)
//	log.Printf("%d ok, %d failed", res.Succeeded, len(res.Failures))
//
// # Related Packages
//
//   - pkg/analytics: UpdateAllDailyMetrics runs on Batch
//   - pkg/jobs: hourly and weekly jobs run on Batch
package async
