package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/logging"
)

// Prometheus metrics for whole runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outlook_sync_run_duration_seconds",
		Help:    "End-to-end pipeline run duration",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	})
)

// Runner executes fetch-aggregate-reconcile runs against an injected source
// and destination.
type Runner struct {
	cfg    Config
	source Source
	dest   Destination
	sink   Sink
	stop   StopObserver
	logger zerolog.Logger
}

// Result summarizes one run.
type Result struct {
	TotalRecords  int  `json:"total_records"` // count reported by the source
	Fetched       int  `json:"fetched"`       // records actually collected
	FailedBatches int  `json:"failed_batches"`
	Recipients    int  `json:"recipients"`
	Inserted      int  `json:"inserted"`
	Updated       int  `json:"updated"`
	Stopped       bool `json:"stopped"`
}

// New creates a Runner. Zero config fields fall back to DefaultConfig.
// A nil sink discards progress lines; a nil stop observer never stops.
func New(cfg Config, source Source, dest Destination, sink Sink, stop StopObserver) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if dest == nil {
		return nil, fmt.Errorf("destination is required")
	}
	if sink == nil {
		sink = SinkFunc(func(string) {})
	}

	return &Runner{
		cfg:    cfg.withDefaults(),
		source: source,
		dest:   dest,
		sink:   sink,
		stop:   stop,
		logger: logging.NewLogger("pipeline"),
	}, nil
}

// Run executes one full run. Only authentication failure and an unavailable
// total count are returned as errors; per-batch and per-chunk failures are
// absorbed and logged, and failures in the final aggregate/reconcile phase
// terminate the run without surfacing to the caller. Cancellation is not an
// error: a stop during the fetch phase still aggregates and reconciles the
// records collected so far. A terminal "run completed" line is always
// emitted.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	outcome := "completed"

	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
		runsTotal.WithLabelValues(outcome).Inc()
		r.emit("run completed")
	}()

	if r.stopped() {
		outcome = "stopped"
		res.Stopped = true
		r.emit("processing stopped by user")
		return res, nil
	}

	if err := r.source.Authenticate(ctx); err != nil {
		outcome = "auth_failed"
		r.logger.Error().Err(err).Msg("Token acquisition failed")
		r.emit("failed to get access token: %v", err)
		return res, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if r.stopped() {
		outcome = "stopped"
		res.Stopped = true
		r.emit("processing stopped by user")
		return res, nil
	}

	total, err := r.source.TotalCount(ctx)
	if err != nil {
		outcome = "count_failed"
		r.logger.Error().Err(err).Msg("Total count unavailable")
		r.emit("failed to get total email count: %v", err)
		return res, fmt.Errorf("%w: %v", ErrCountUnavailable, err)
	}
	res.TotalRecords = total
	r.emit("total emails in sent folder: %d", total)

	plan := BatchPlan{Total: total, PageSize: r.cfg.PageSize}
	msgs, failed := r.fetchAll(ctx, plan)
	res.Fetched = len(msgs)
	res.FailedBatches = failed

	// A stop during the fetch phase ends scheduling, not the run: records
	// already collected are still aggregated and reconciled, so nothing
	// fetched is wasted and a later full run simply raises the counts.
	if r.stopped() {
		outcome = "stopped"
		res.Stopped = true
		r.emit("processing stopped by user")
	}

	r.finalPhase(ctx, msgs, &res, &outcome)
	return res, nil
}

// finalPhase aggregates and reconciles. Any failure here ends the run
// without re-raising: it is logged with a diagnostic trace and surfaced
// through the sink only.
func (r *Runner) finalPhase(ctx context.Context, msgs []Message, res *Result, outcome *string) {
	defer func() {
		if p := recover(); p != nil {
			*outcome = "failed"
			r.logger.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("Final processing panicked")
			r.emit("error in final processing: %v", p)
		}
	}()

	agg := Aggregate(msgs)
	res.Recipients = len(agg)
	r.logger.Info().
		Int("records", len(msgs)).
		Int("recipients", len(agg)).
		Msg("Aggregation complete")

	existing, err := r.dest.ListRecords(ctx)
	if err != nil {
		*outcome = "failed"
		r.logger.Error().Err(err).Msg("Destination snapshot failed")
		r.emit("error in final processing: %v", err)
		return
	}
	r.emit("found %d existing records", len(existing))

	plan := BuildSyncPlan(agg, existing)
	res.Inserted, res.Updated = r.applySyncPlan(ctx, plan)

	r.emit("total no of new records: %d", len(plan.Inserts))
	r.emit("total no of updated records: %d", len(plan.Updates))
}

func (r *Runner) emit(format string, args ...any) {
	r.sink.Emit(fmt.Sprintf(format, args...))
}

func (r *Runner) stopped() bool {
	return r.stop != nil && r.stop.ShouldStop()
}
