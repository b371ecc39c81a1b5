// Package pipeline implements the concurrent fetch-aggregate-reconcile run
// that folds a mailbox's sent-item history into per-recipient summaries and
// synchronizes them into a destination table.
//
// A run proceeds in three phases:
//   - Fetch: a bounded worker pool (default 5 workers) drains a queue of page
//     offsets, retrying each page a fixed number of times and collecting all
//     records into a mutex-guarded buffer. A permanently failed page is logged
//     and skipped; the run continues.
//   - Aggregate: a single-threaded fold reduces the buffer to one summary per
//     normalized recipient address (occurrence counts, max-merged last
//     interaction date).
//   - Reconcile: the full destination snapshot is diffed against the aggregate
//     and the minimal insert/update set is written in fixed-size chunks.
//
// Cancellation is cooperative: a StopObserver is polled before submitting each
// page, before each retry attempt, and before consuming each completed page.
// In-flight requests are never aborted forcibly.
//
// Example usage:
//
//	cfg := pipeline.DefaultConfig()
//	runner, err := pipeline.New(cfg, source, dest, sink, stopFlag)
//	result, err := runner.Run(ctx)
//
// The source and destination APIs are injected as interfaces; see pkg/graph
// and pkg/airtable for the production implementations.
package pipeline
