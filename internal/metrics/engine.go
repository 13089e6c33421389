package metrics

import (
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/shift"
)

// OperatingHours is the window span minus applicable break time, clamped at
// zero, in hours.
func OperatingHours(start, end time.Time, mode domain.WorkingMode) float64 {
	total := end.Sub(start).Seconds()
	seconds := total - shift.Seconds(domain.TimeWindow{Start: start, End: end}, mode)
	if seconds < 0 {
		seconds = 0
	}
	return seconds / 3600
}

// ComputeModelMetrics derives per-model quality, theoretical quantity and
// performance from grouped count rows over [w.Start, effectiveEnd].
//
// Performance is only defined when at least one row in the batch carries a
// positive target rate; in that case every target-bearing row gets a numeric
// performance (0 when its theoretical quantity is 0) computed on a single
// operating-hours basis, and rows without a target keep a nil performance.
// When no row bears a target, performance stays nil across the whole batch.
// Counts are taken as given; validation is the query layer's concern.
func ComputeModelMetrics(rows []domain.ModelRecord, w domain.TimeWindow, effectiveEnd time.Time, mode domain.WorkingMode) []domain.ModelMetrics {
	hours := OperatingHours(w.Start, effectiveEnd, mode)

	out := make([]domain.ModelMetrics, 0, len(rows))
	hasTarget := false
	for _, row := range rows {
		total := row.SuccessCount + row.FailCount
		m := domain.ModelMetrics{
			Model:        row.Model,
			SuccessCount: row.SuccessCount,
			FailCount:    row.FailCount,
			TotalCount:   total,
			TargetRate:   row.TargetRate,
		}
		if total > 0 {
			m.Quality = float64(row.SuccessCount) / float64(total)
		}
		if targetBearing(row.TargetRate) {
			m.TheoreticalQty = hours * *row.TargetRate
			hasTarget = true
		}
		out = append(out, m)
	}
	if !hasTarget {
		return out
	}

	// Second pass: fix performance for every target-bearing model on the
	// shared operating-hours basis.
	for i := range out {
		m := &out[i]
		if !targetBearing(m.TargetRate) {
			m.TheoreticalQty = 0
			m.Performance = nil
			continue
		}
		m.TheoreticalQty = hours * *m.TargetRate
		perf := 0.0
		if m.TheoreticalQty > 0 {
			perf = float64(m.TotalCount) / m.TheoreticalQty
		}
		m.Performance = &perf
	}
	return out
}

func targetBearing(rate *float64) bool {
	return rate != nil && *rate > 0
}
