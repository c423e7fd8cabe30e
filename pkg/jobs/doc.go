// Package jobs holds the periodic aggregation jobs and the cron scheduler
// that runs them.
//
// Four jobs are provided:
//
//   - daily: computes today's metric record for every approved provider
//   - hourly: refreshes today's counts and the rollup cache
//   - weekly: emails last week's report to opted-in providers and admins
//   - retention: archives and deletes metric records past retention
//
// Every run takes a distributed lock named after the job, so only one
// replica runs it, and failed runs are retried with exponential backoff.
//
//	s := jobs.NewScheduler(jobs.Config{MaxRetries: 3}, locks, logger, metrics, nil)
//	s.Register(jobs.DefaultDailySchedule, jobs.NewDailyJob(collector, clock, logger))
//	s.Start()
//	defer s.Stop(ctx)
package jobs
