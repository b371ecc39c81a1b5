package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the fetch phase.
var (
	fetchBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_fetch_batches_total",
		Help: "Total fetched page batches by status",
	}, []string{"status"})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outlook_sync_fetch_retries_total",
		Help: "Total page fetch retry attempts",
	})

	fetchRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outlook_sync_records_fetched_total",
		Help: "Total source records fetched across all runs",
	})

	fetchPhaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outlook_sync_fetch_phase_duration_seconds",
		Help:    "Duration of the parallel fetch phase",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// recordBuffer is the shared accumulation structure for fetched records.
// Appends are serialized; order across batches is irrelevant.
type recordBuffer struct {
	mu   sync.Mutex
	msgs []Message
}

// append adds one batch of records and returns the new total.
func (b *recordBuffer) append(batch []Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, batch...)
	return len(b.msgs)
}

func (b *recordBuffer) snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// batchOutcome is the completion signal for one submitted batch.
type batchOutcome struct {
	batch   int
	count   int
	skipped bool
	err     error
}

// fetchAll drives the worker pool across all batches of the plan. It returns
// only after every submitted batch has completed, failed, or been skipped due
// to cancellation. Failed batches contribute zero records.
func (r *Runner) fetchAll(ctx context.Context, plan BatchPlan) ([]Message, int) {
	start := time.Now()
	defer func() {
		fetchPhaseDuration.Observe(time.Since(start).Seconds())
	}()

	batches := plan.Batches()
	buf := &recordBuffer{}
	queue := make(chan int, batches)
	outcomes := make(chan batchOutcome, batches)

	// Submit units, stopping at the first positive stop check. Units
	// already queued are re-checked by the worker before fetching.
	submitted := 0
	for batch := 0; batch < batches; batch++ {
		if r.stopped() {
			r.emit("stop requested, skipping %d remaining batches", batches-batch)
			break
		}
		queue <- batch
		submitted++
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go r.fetchWorker(ctx, plan, buf, queue, outcomes, &wg)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	failed := 0
	for out := range outcomes {
		if r.stopped() {
			// Drain without reacting so every submitted unit is still
			// accounted for before returning.
			continue
		}
		if out.err != nil {
			failed++
		}
	}

	r.logger.Info().
		Int("submitted", submitted).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Fetch phase complete")

	return buf.snapshot(), failed
}

// fetchWorker drains the batch queue until it closes. A stop check runs
// before every fetch so queued-but-unstarted units are abandoned cheaply.
func (r *Runner) fetchWorker(ctx context.Context, plan BatchPlan, buf *recordBuffer, queue <-chan int, outcomes chan<- batchOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for batch := range queue {
		if r.stopped() {
			outcomes <- batchOutcome{batch: batch, skipped: true}
			continue
		}

		msgs, err := r.fetchBatch(ctx, plan, batch)
		if err != nil {
			fetchBatchesTotal.WithLabelValues("failed").Inc()
			r.logger.Warn().
				Err(err).
				Int("batch", batch).
				Msg("Batch permanently failed")
			r.emit("batch %d failed after %d retries", batch, r.cfg.MaxRetries)
			outcomes <- batchOutcome{batch: batch, err: err}
			continue
		}

		total := buf.append(msgs)
		fetchBatchesTotal.WithLabelValues("fetched").Inc()
		fetchRecordsTotal.Add(float64(len(msgs)))
		r.emit("batch %d fetched, total so far: %d", batch, total)
		outcomes <- batchOutcome{batch: batch, count: len(msgs)}
	}
}

// fetchBatch fetches one page with bounded retries and a fixed delay between
// attempts. The stop flag is checked before every retry; a positive check
// abandons the batch without further sleeps or requests.
func (r *Runner) fetchBatch(ctx context.Context, plan BatchPlan, batch int) ([]Message, error) {
	offset := plan.Offset(batch)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if r.stopped() {
				return nil, &FetchError{Offset: offset, Attempts: attempt - 1, Err: lastErr}
			}

			fetchRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, &FetchError{Offset: offset, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(r.cfg.RetryDelay):
			}

			if r.stopped() {
				return nil, &FetchError{Offset: offset, Attempts: attempt - 1, Err: lastErr}
			}
		}

		msgs, err := r.source.ListPage(ctx, offset, plan.PageSize)
		if err == nil {
			return msgs, nil
		}

		lastErr = err
		r.logger.Warn().
			Err(err).
			Int("batch", batch).
			Int("offset", offset).
			Int("attempt", attempt).
			Int("max_attempts", r.cfg.MaxRetries).
			Msg("Page fetch failed")
		r.emit("error fetching batch %d (attempt %d/%d): %v", batch, attempt, r.cfg.MaxRetries, err)
	}

	return nil, &FetchError{Offset: offset, Attempts: r.cfg.MaxRetries, Err: lastErr}
}
