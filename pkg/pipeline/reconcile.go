package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the reconcile phase.
var (
	syncWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_records_written_total",
		Help: "Total destination records written by operation",
	}, []string{"op"})

	syncWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_write_errors_total",
		Help: "Total failed destination write chunks by operation",
	}, []string{"op"})
)

// SyncPlan is the minimal set of destination writes needed to make remote
// state match the aggregate. Inserts and updates are disjoint.
type SyncPlan struct {
	Inserts []Fields
	Updates []Update
}

// Empty reports whether the plan carries no writes.
func (p SyncPlan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0
}

// NormalizeDate maps both the stored (YYYY-MM-DD) and freshly computed
// (YYYY/MM/DD) date forms to one canonical form so the field comparison does
// not produce spurious updates.
func NormalizeDate(date string) string {
	return strings.ReplaceAll(date, "/", "-")
}

// BuildSyncPlan diffs the aggregate against the destination snapshot.
// Addresses are compared after normalization on both sides. An existing
// record is queued for update only when a tracked field (total count,
// last-interaction date) differs; unmatched aggregate entries are queued for
// insert with the full field set. Output order is deterministic.
func BuildSyncPlan(agg map[string]*RecipientSummary, existing []Record) SyncPlan {
	byEmail := make(map[string]Record, len(existing))
	for _, rec := range existing {
		byEmail[NormalizeAddress(rec.Fields.RecipientEmail)] = rec
	}

	keys := make([]string, 0, len(agg))
	for key := range agg {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var plan SyncPlan
	for _, key := range keys {
		s := agg[key]

		rec, ok := byEmail[key]
		if !ok {
			plan.Inserts = append(plan.Inserts, Fields{
				RecipientEmail: s.Email,
				Company:        s.Company,
				Name:           s.Name,
				TotalMailsSent: s.TotalMailsSent,
				LastInteracted: s.LastInteracted,
			})
			continue
		}

		if rec.Fields.TotalMailsSent != s.TotalMailsSent ||
			NormalizeDate(rec.Fields.LastInteracted) != NormalizeDate(s.LastInteracted) {
			plan.Updates = append(plan.Updates, Update{
				ID:             rec.ID,
				TotalMailsSent: s.TotalMailsSent,
				LastInteracted: s.LastInteracted,
			})
		}
	}

	return plan
}

// applySyncPlan writes the plan in fixed-size chunks. A failed chunk is
// logged and skipped without retry; chunks already written stay applied.
// Returns the counts actually written.
func (r *Runner) applySyncPlan(ctx context.Context, plan SyncPlan) (inserted, updated int) {
	for start := 0; start < len(plan.Inserts); start += r.cfg.ChunkSize {
		end := min(start+r.cfg.ChunkSize, len(plan.Inserts))
		chunk := plan.Inserts[start:end]

		if err := r.dest.Insert(ctx, chunk); err != nil {
			werr := &SyncWriteError{Op: "insert", Count: len(chunk), Err: err}
			syncWriteErrorsTotal.WithLabelValues("insert").Inc()
			r.logger.Error().Err(werr).Msg("Destination write failed")
			r.emit("error uploading records: %v", werr)
			continue
		}

		inserted += len(chunk)
		syncWritesTotal.WithLabelValues("insert").Add(float64(len(chunk)))
		r.emit("uploaded %d new records", len(chunk))
	}

	for start := 0; start < len(plan.Updates); start += r.cfg.ChunkSize {
		end := min(start+r.cfg.ChunkSize, len(plan.Updates))
		chunk := plan.Updates[start:end]

		if err := r.dest.Update(ctx, chunk); err != nil {
			werr := &SyncWriteError{Op: "update", Count: len(chunk), Err: err}
			syncWriteErrorsTotal.WithLabelValues("update").Inc()
			r.logger.Error().Err(werr).Msg("Destination write failed")
			r.emit("error updating records: %v", werr)
			continue
		}

		updated += len(chunk)
		syncWritesTotal.WithLabelValues("update").Add(float64(len(chunk)))
		r.emit("updated %d records", len(chunk))
	}

	return inserted, updated
}
