package metrics

import (
	"math"
	"testing"

	"github.com/ersozo/re-dashboard/internal/domain"
)

func TestUnitRollupSumsAndQuality(t *testing.T) {
	models := []domain.ModelMetrics{
		{Model: "A", SuccessCount: 60, FailCount: 20, TotalCount: 80, Performance: ptr(0.8)},
		{Model: "B", SuccessCount: 30, FailCount: 10, TotalCount: 40, Performance: ptr(1.1)},
		{Model: "C", SuccessCount: 10, FailCount: 0, TotalCount: 10},
	}

	s := UnitRollup(models)
	if s.TotalSuccess != 100 || s.TotalFail != 30 || s.TotalQty != 130 {
		t.Fatalf("unexpected sums: %+v", s)
	}
	if want := 100.0 / 130.0; s.Quality != want {
		t.Fatalf("expected quality %v, got %v", want, s.Quality)
	}
	// A raw sum over non-nil performances, not an average. The sum
	// accumulates rounding, so compare within a tolerance.
	if want := 1.9; math.Abs(s.PerformanceSum-want) > 1e-12 {
		t.Fatalf("expected performance sum %v, got %v", want, s.PerformanceSum)
	}
}

func TestUnitRollupEmpty(t *testing.T) {
	s := UnitRollup(nil)
	if s.Quality != 0 || s.PerformanceSum != 0 || s.TotalQty != 0 {
		t.Fatalf("empty rollup must be all zeros: %+v", s)
	}
}

func TestOverallRollupWeightedQuality(t *testing.T) {
	units := map[string]domain.UnitSummary{
		"A": {Quality: 1.0, TotalQty: 10, TotalSuccess: 10},
		"B": {Quality: 0.5, TotalQty: 10, TotalSuccess: 5},
	}

	got := OverallRollup(units)
	if got.WeightedQuality != 0.75 {
		t.Fatalf("expected weighted quality 0.75, got %v", got.WeightedQuality)
	}
	if got.TotalProduction != 20 {
		t.Fatalf("expected total production 20, got %d", got.TotalProduction)
	}
}

func TestOverallRollupPerformanceWeightedBySuccess(t *testing.T) {
	// Performance is weighted by success count, not total quantity.
	units := map[string]domain.UnitSummary{
		"A": {TotalQty: 100, TotalSuccess: 10, PerformanceSum: 1.0},
		"B": {TotalQty: 10, TotalSuccess: 30, PerformanceSum: 2.0},
	}

	got := OverallRollup(units)
	want := (1.0*10 + 2.0*30) / 40
	if got.WeightedPerformance != want {
		t.Fatalf("expected weighted performance %v, got %v", want, got.WeightedPerformance)
	}
}

func TestOverallRollupZeroDenominators(t *testing.T) {
	got := OverallRollup(map[string]domain.UnitSummary{"A": {}})
	if got.WeightedQuality != 0 || got.WeightedPerformance != 0 {
		t.Fatalf("zero-volume rollup must read 0, got %+v", got)
	}
}

func TestWeightedPerformance(t *testing.T) {
	models := []domain.ModelMetrics{
		{Model: "A", TotalCount: 80, TargetRate: ptr(100)},
		{Model: "B", TotalCount: 20, TargetRate: ptr(50)},
		{Model: "C", TotalCount: 40}, // no target, excluded from the weighting
	}

	perf, theo, ok := WeightedPerformance(models, 1.0)
	if !ok {
		t.Fatalf("expected a target-bearing batch")
	}
	// weighted rate = 0.8*100 + 0.2*50 = 90; theoretical = 90; perf = 100/90.
	if theo != 90 {
		t.Fatalf("expected theoretical qty 90, got %v", theo)
	}
	if want := 100.0 / 90.0; perf != want {
		t.Fatalf("expected performance %v, got %v", want, perf)
	}
}

func TestWeightedPerformanceNoTargets(t *testing.T) {
	if _, _, ok := WeightedPerformance([]domain.ModelMetrics{{Model: "A", TotalCount: 5}}, 1.0); ok {
		t.Fatalf("batch without targets must report ok=false")
	}
}

func TestWeightedPerformanceZeroHours(t *testing.T) {
	models := []domain.ModelMetrics{{Model: "A", TotalCount: 10, TargetRate: ptr(100)}}
	perf, theo, ok := WeightedPerformance(models, 0)
	if !ok || perf != 0 || theo != 0 {
		t.Fatalf("zero operating hours must read performance 0, got perf=%v theo=%v ok=%v", perf, theo, ok)
	}
}
