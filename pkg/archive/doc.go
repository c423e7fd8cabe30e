// Package archive implements the retention sweep for provider metrics.
//
// # Sweep
//
// A sweep with cutoff C:
//
//  1. counts MetricRecords with date < C and stops early when there are none
//  2. streams them, ordered by provider then date, into
//     provider_metrics_archive_<timestamp>.csv in pages of 500
//  3. gzips the CSV and removes it, keeping the CSV if compression fails
//  4. confirms the archive is on disk, then deletes the archived rows in
//     batches of 1000
//  5. deletes orphaned rows of any age whose provider no longer exists
//  6. refreshes planner statistics where the store supports it
//
// Rows are only deleted up to the highest archived id, so rows that become
// eligible during the sweep wait for the next run.
//
// An optional Uploader copies the archive to object storage. Upload failures
// are logged and never block deletion of rows already archived locally.
package archive
