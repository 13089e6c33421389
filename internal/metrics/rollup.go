package metrics

import "github.com/ersozo/re-dashboard/internal/domain"

// UnitRollup combines one unit's model metrics into a UnitSummary.
// PerformanceSum is a raw, unnormalized sum over non-nil performances:
// downstream consumers divide it by different weights.
func UnitRollup(models []domain.ModelMetrics) domain.UnitSummary {
	s := domain.UnitSummary{Models: models}
	for _, m := range models {
		s.TotalSuccess += m.SuccessCount
		s.TotalFail += m.FailCount
		s.TotalQty += m.TotalCount
		if m.Performance != nil {
			s.PerformanceSum += *m.Performance
		}
	}
	if processed := s.TotalSuccess + s.TotalFail; processed > 0 {
		s.Quality = float64(s.TotalSuccess) / float64(processed)
	}
	return s
}

// OverallRollup builds the volume-weighted totals across units. Quality is
// weighted by total quantity; performance is weighted by success count over
// the raw per-unit performance sums. The asymmetry is deliberate.
func OverallRollup(units map[string]domain.UnitSummary) domain.OverallSummary {
	var (
		out               domain.OverallSummary
		qualityWeighted   float64
		perfWeighted      float64
		perfSuccessWeight int64
	)
	for _, u := range units {
		out.TotalSuccess += u.TotalSuccess
		out.TotalFail += u.TotalFail
		out.TotalProduction += u.TotalQty
		if u.TotalQty > 0 {
			qualityWeighted += u.Quality * float64(u.TotalQty)
		}
		if u.TotalSuccess > 0 {
			perfWeighted += u.PerformanceSum * float64(u.TotalSuccess)
			perfSuccessWeight += u.TotalSuccess
		}
	}
	if out.TotalProduction > 0 {
		out.WeightedQuality = qualityWeighted / float64(out.TotalProduction)
	}
	if perfSuccessWeight > 0 {
		out.WeightedPerformance = perfWeighted / float64(perfSuccessWeight)
	}
	return out
}

// WeightedPerformance computes the unit-level performance from the target
// rates of the models that carry one, weighted by each model's share of the
// target-bearing output. ok is false when no model bears a target, which is
// the "no numeric performance" case.
func WeightedPerformance(models []domain.ModelMetrics, operatingHours float64) (performance, theoreticalQty float64, ok bool) {
	var actualQty int64
	for _, m := range models {
		if targetBearing(m.TargetRate) {
			actualQty += m.TotalCount
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	if actualQty == 0 {
		return 0, 0, true
	}
	var weightedRate float64
	for _, m := range models {
		if targetBearing(m.TargetRate) {
			weightedRate += float64(m.TotalCount) / float64(actualQty) * *m.TargetRate
		}
	}
	theoreticalQty = operatingHours * weightedRate
	if theoreticalQty > 0 {
		performance = float64(actualQty) / theoreticalQty
	}
	return performance, theoreticalQty, true
}
