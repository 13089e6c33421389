package domain

import (
	"fmt"
	"strings"
	"time"
)

// Zone is the fixed UTC+3 offset all production timestamps are normalized
// to. The plant does not observe daylight saving.
var Zone = time.FixedZone("GMT+3", 3*60*60)

// WorkingMode selects which shift breaks apply to a window.
type WorkingMode string

const (
	Mode1 WorkingMode = "mode1"
	Mode2 WorkingMode = "mode2"
	Mode3 WorkingMode = "mode3"
)

// ParseWorkingMode maps a raw mode string to a known mode, falling back to
// Mode1 for anything unrecognized.
func ParseWorkingMode(raw string) WorkingMode {
	switch WorkingMode(strings.TrimSpace(raw)) {
	case Mode2:
		return Mode2
	case Mode3:
		return Mode3
	default:
		return Mode1
	}
}

// TimeWindow is a closed interval with both ends normalized to Zone.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow normalizes both instants into Zone.
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{Start: start.In(Zone), End: end.In(Zone)}
}

// ParseWindow builds a TimeWindow from two ISO-8601 strings. A trailing Z
// is accepted and converted into Zone.
func ParseWindow(startRaw, endRaw string) (TimeWindow, error) {
	start, err := parseInstant(startRaw)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse start time: %w", err)
	}
	end, err := parseInstant(endRaw)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse end time: %w", err)
	}
	w := NewTimeWindow(start, end)
	if w.End.Before(w.Start) {
		return TimeWindow{}, fmt.Errorf("window end %s precedes start %s", endRaw, startRaw)
	}
	return w, nil
}

func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, Zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// ModelRecord is one grouped row returned by the production query: counts
// for a single model plus its hourly target rate, when one is configured.
type ModelRecord struct {
	Model        string
	SuccessCount int64
	FailCount    int64
	TargetRate   *float64
}

// ModelMetrics is the per-model computation product. Performance stays nil
// for models without a target; it is never coerced to zero. OEE is carried
// in the payload for consumers that expect the field but is not computed;
// it always marshals as null.
type ModelMetrics struct {
	Model          string   `json:"model"`
	SuccessCount   int64    `json:"success_qty"`
	FailCount      int64    `json:"fail_qty"`
	TotalCount     int64    `json:"total_qty"`
	TargetRate     *float64 `json:"target"`
	Quality        float64  `json:"quality"`
	TheoreticalQty float64  `json:"theoretical_qty"`
	Performance    *float64 `json:"performance"`
	OEE            *float64 `json:"oee"`
}

// UnitSummary aggregates one unit's model metrics. PerformanceSum is a raw
// sum over non-nil model performances; consumers apply their own weights.
type UnitSummary struct {
	TotalSuccess   int64          `json:"total_success"`
	TotalFail      int64          `json:"total_fail"`
	TotalQty       int64          `json:"total_qty"`
	Quality        float64        `json:"quality"`
	PerformanceSum float64        `json:"performance_sum"`
	Models         []ModelMetrics `json:"models"`
}

// OverallSummary is the volume-weighted rollup across units.
type OverallSummary struct {
	TotalSuccess        int64   `json:"total_success"`
	TotalFail           int64   `json:"total_fail"`
	TotalProduction     int64   `json:"total_production"`
	WeightedQuality     float64 `json:"weighted_quality"`
	WeightedPerformance float64 `json:"weighted_performance"`
}

// MultiUnitReport is the aggregated report across several units. Units whose
// query failed are absent from the map and excluded from the summary.
type MultiUnitReport struct {
	Units   map[string]UnitSummary `json:"units"`
	Summary OverallSummary         `json:"summary"`
}

// UnitReport is the single-unit report: totals, weighted-target-rate
// performance and the raw model list.
type UnitReport struct {
	UnitName         string         `json:"unit_name"`
	TotalSuccess     int64          `json:"total_success"`
	TotalFail        int64          `json:"total_fail"`
	TotalQty         int64          `json:"total_qty"`
	TotalQuality     float64        `json:"total_quality"`
	TotalPerformance float64        `json:"total_performance"`
	PerformanceSum   float64        `json:"unit_performance_sum"`
	TheoreticalQty   float64        `json:"total_theoretical_qty"`
	Models           []ModelMetrics `json:"models"`
}

// HourBucket is one hour-aligned slice of a window. Buckets partition the
// window contiguously; the final bucket may be shorter than an hour.
type HourBucket struct {
	HourStart      time.Time `json:"hour_start"`
	HourEnd        time.Time `json:"hour_end"`
	SuccessQty     int64     `json:"success_qty"`
	FailQty        int64     `json:"fail_qty"`
	TotalQty       int64     `json:"total_qty"`
	Quality        float64   `json:"quality"`
	Performance    float64   `json:"performance"`
	OEE            float64   `json:"oee"`
	TheoreticalQty float64   `json:"theoretical_qty"`
}

// HourlyReport carries the hour-bucketed breakdown plus window totals.
// TotalPerformance here is Σqty/Σtheoretical over the buckets, which is a
// different formula than UnitReport's weighted-target-rate performance.
// TotalOEE and the buckets' OEE are uncomputed placeholder fields that
// always read 0.
type HourlyReport struct {
	UnitName            string       `json:"unit_name"`
	TotalSuccess        int64        `json:"total_success"`
	TotalFail           int64        `json:"total_fail"`
	TotalQty            int64        `json:"total_qty"`
	TotalQuality        float64      `json:"total_quality"`
	TotalPerformance    float64      `json:"total_performance"`
	TotalOEE            float64      `json:"total_oee"`
	TotalTheoreticalQty float64      `json:"total_theoretical_qty"`
	HourlyData          []HourBucket `json:"hourly_data"`
}

// StreamParams is the mutable state of one stream session. It is owned by
// the session goroutine and rebound only between push iterations.
type StreamParams struct {
	UnitName string
	Window   TimeWindow
	Mode     WorkingMode
}
