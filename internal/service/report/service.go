// Package report builds window-resolved efficiency reports from the
// production gateway.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/metrics"
	"github.com/ersozo/re-dashboard/internal/repository"
)

// DefaultQueryTimeout bounds every gateway call.
const DefaultQueryTimeout = 30 * time.Second

var (
	// ErrNoUnits rejects a multi-unit request with an empty unit list.
	ErrNoUnits = errors.New("report: no units specified")
	// ErrQueryTimeout marks a gateway call that exceeded its bound.
	ErrQueryTimeout = errors.New("report: query timeout")
)

// Service computes unit, multi-unit and hourly reports.
type Service struct {
	gw           repository.ProductionGateway
	log          *slog.Logger
	queryTimeout time.Duration
	now          func() time.Time
}

// New constructs a report service. A non-positive queryTimeout falls back to
// DefaultQueryTimeout.
func New(gw repository.ProductionGateway, log *slog.Logger, queryTimeout time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Service{
		gw:           gw,
		log:          log,
		queryTimeout: queryTimeout,
		now:          func() time.Time { return time.Now().In(domain.Zone) },
	}
}

// WithClock overrides the reference clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Units lists the known production units.
func (s *Service) Units(ctx context.Context) ([]string, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	units, err := s.gw.ListUnits(qctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: list units", ErrQueryTimeout)
		}
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// UnitReport builds the single-unit report: totals, quality, the weighted-
// target-rate performance and the raw model list.
func (s *Service) UnitReport(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode) (domain.UnitReport, error) {
	effEnd, _ := metrics.ResolveEffectiveEnd(w, s.now())
	rows, err := s.fetch(ctx, unitName, w.Start, effEnd)
	if err != nil {
		return domain.UnitReport{}, err
	}
	models := metrics.ComputeModelMetrics(rows, w, effEnd, mode)
	return buildUnitReport(unitName, models, w, effEnd, mode), nil
}

// MultiUnitReport aggregates several units with volume-weighted totals.
// Units whose query failed are logged, skipped and excluded from the
// weighting; an empty unit list is a validation error.
func (s *Service) MultiUnitReport(ctx context.Context, unitNames []string, w domain.TimeWindow, mode domain.WorkingMode) (domain.MultiUnitReport, error) {
	if len(unitNames) == 0 {
		return domain.MultiUnitReport{}, ErrNoUnits
	}
	effEnd, _ := metrics.ResolveEffectiveEnd(w, s.now())

	units := make(map[string]domain.UnitSummary, len(unitNames))
	for _, name := range unitNames {
		rows, err := s.fetch(ctx, name, w.Start, effEnd)
		if err != nil {
			s.log.Warn("unit skipped in multi-unit report", "unit", name, "error", err)
			continue
		}
		models := metrics.ComputeModelMetrics(rows, w, effEnd, mode)
		units[name] = metrics.UnitRollup(models)
	}
	return domain.MultiUnitReport{
		Units:   units,
		Summary: metrics.OverallRollup(units),
	}, nil
}

// HourlyReport builds the hour-bucketed report with totals derived from the
// bucket sums. Its total performance is Σqty/Σtheoretical over the buckets.
func (s *Service) HourlyReport(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode) (domain.HourlyReport, error) {
	now := s.now()
	buckets := s.hourlyBuckets(ctx, unitName, w, mode, now)

	out := domain.HourlyReport{UnitName: unitName, HourlyData: buckets}
	for _, b := range buckets {
		out.TotalSuccess += b.SuccessQty
		out.TotalFail += b.FailQty
		out.TotalQty += b.TotalQty
		out.TotalTheoreticalQty += b.TheoreticalQty
	}
	if processed := out.TotalSuccess + out.TotalFail; processed > 0 {
		out.TotalQuality = float64(out.TotalSuccess) / float64(processed)
	}
	if out.TotalTheoreticalQty > 0 {
		out.TotalPerformance = float64(out.TotalQty) / out.TotalTheoreticalQty
	}
	return out, nil
}

// HourlySnapshot is the stream variant of the hourly report: window totals
// come from one full-range query using the weighted-target-rate performance,
// while the theoretical total still comes from the bucket sum. The two
// performance figures intentionally follow different formulas.
func (s *Service) HourlySnapshot(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode) (domain.HourlyReport, error) {
	now := s.now()
	effEnd, _ := metrics.ResolveEffectiveEnd(w, now)
	rows, err := s.fetch(ctx, unitName, w.Start, effEnd)
	if err != nil {
		return domain.HourlyReport{}, err
	}
	models := metrics.ComputeModelMetrics(rows, w, effEnd, mode)
	full := buildUnitReport(unitName, models, w, effEnd, mode)

	buckets := s.hourlyBuckets(ctx, unitName, w, mode, now)
	out := domain.HourlyReport{
		UnitName:         unitName,
		TotalSuccess:     full.TotalSuccess,
		TotalFail:        full.TotalFail,
		TotalQty:         full.TotalQty,
		TotalQuality:     full.TotalQuality,
		TotalPerformance: full.TotalPerformance,
		HourlyData:       buckets,
	}
	for _, b := range buckets {
		out.TotalTheoreticalQty += b.TheoreticalQty
	}
	return out, nil
}

// hourlyBuckets partitions [w.Start floored to the hour, effective end] into
// contiguous buckets, querying and resolving each independently. A failed
// bucket is skipped. At the live edge the bucket is truncated at "now" and
// the cursor advances by a full hour so the truncated remainder is not
// revisited within this pass.
func (s *Service) hourlyBuckets(ctx context.Context, unitName string, w domain.TimeWindow, mode domain.WorkingMode, now time.Time) []domain.HourBucket {
	effEnd, live := metrics.ResolveEffectiveEnd(w, now)

	start := w.Start.In(domain.Zone)
	cursor := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), 0, 0, 0, domain.Zone)

	buckets := make([]domain.HourBucket, 0)
	for cursor.Before(effEnd) {
		hourEnd := cursor.Add(time.Hour)
		liveEdge := live && cursor.Before(now) && now.Before(hourEnd)
		if liveEdge {
			hourEnd = now
		} else if hourEnd.After(effEnd) {
			hourEnd = effEnd
		}

		rows, err := s.fetch(ctx, unitName, cursor, hourEnd)
		if err != nil {
			s.log.Warn("hour bucket skipped", "unit", unitName, "hour_start", cursor, "error", err)
			cursor = nextCursor(cursor, hourEnd, liveEdge)
			continue
		}

		bw := domain.TimeWindow{Start: cursor, End: hourEnd}
		models := metrics.ComputeModelMetrics(rows, bw, hourEnd, mode)
		summary := metrics.UnitRollup(models)
		hours := metrics.OperatingHours(cursor, hourEnd, mode)
		perf, theo, _ := metrics.WeightedPerformance(models, hours)

		buckets = append(buckets, domain.HourBucket{
			HourStart:      cursor,
			HourEnd:        hourEnd,
			SuccessQty:     summary.TotalSuccess,
			FailQty:        summary.TotalFail,
			TotalQty:       summary.TotalQty,
			Quality:        summary.Quality,
			Performance:    perf,
			TheoreticalQty: theo,
		})
		cursor = nextCursor(cursor, hourEnd, liveEdge)
	}
	return buckets
}

func nextCursor(cursor, hourEnd time.Time, liveEdge bool) time.Time {
	if liveEdge {
		return cursor.Add(time.Hour)
	}
	return hourEnd
}

func buildUnitReport(unitName string, models []domain.ModelMetrics, w domain.TimeWindow, effEnd time.Time, mode domain.WorkingMode) domain.UnitReport {
	summary := metrics.UnitRollup(models)
	hours := metrics.OperatingHours(w.Start, effEnd, mode)
	perf, theo, _ := metrics.WeightedPerformance(models, hours)
	return domain.UnitReport{
		UnitName:         unitName,
		TotalSuccess:     summary.TotalSuccess,
		TotalFail:        summary.TotalFail,
		TotalQty:         summary.TotalQty,
		TotalQuality:     summary.Quality,
		TotalPerformance: perf,
		PerformanceSum:   summary.PerformanceSum,
		TheoreticalQty:   theo,
		Models:           models,
	}
}

// fetch runs one gateway query under the service's timeout, mapping a
// deadline overrun to ErrQueryTimeout. The context bound means "stop
// waiting"; whether the underlying query keeps executing is up to the
// driver.
func (s *Service) fetch(ctx context.Context, unitName string, start, end time.Time) ([]domain.ModelRecord, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.gw.FetchModelCounts(qctx, unitName, start, end)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: unit %s", ErrQueryTimeout, unitName)
		}
		return nil, fmt.Errorf("fetch model counts for %s: %w", unitName, err)
	}
	return rows, nil
}
