package stream

import (
	"strings"

	"github.com/ersozo/re-dashboard/internal/domain"
)

// inboundMessage is what a client may send mid-stream: either a heartbeat
// marker or a parameter update. The initial message after connect must be a
// parameter message.
type inboundMessage struct {
	Heartbeat   bool   `json:"heartbeat"`
	UnitName    string `json:"unit_name"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	WorkingMode string `json:"working_mode"`
}

func (m inboundMessage) toParams(fallbackUnit string) (domain.StreamParams, error) {
	w, err := domain.ParseWindow(m.StartTime, m.EndTime)
	if err != nil {
		return domain.StreamParams{}, err
	}
	unit := strings.TrimSpace(m.UnitName)
	if unit == "" {
		unit = fallbackUnit
	}
	return domain.StreamParams{
		UnitName: unit,
		Window:   w,
		Mode:     domain.ParseWorkingMode(m.WorkingMode),
	}, nil
}

// heartbeatAck echoes a heartbeat with the server timestamp in unix seconds.
type heartbeatAck struct {
	Heartbeat bool    `json:"heartbeat"`
	Timestamp float64 `json:"timestamp"`
}

// errorMessage is the snapshot replacement pushed when a cycle fails.
type errorMessage struct {
	Error string `json:"error"`
}

// unitSnapshot is the standard-channel payload.
type unitSnapshot struct {
	UnitName string                `json:"unit_name"`
	Models   []domain.ModelMetrics `json:"models"`
	Summary  unitTotals            `json:"summary"`
}

type unitTotals struct {
	TotalSuccess     int64   `json:"total_success"`
	TotalFail        int64   `json:"total_fail"`
	TotalQty         int64   `json:"total_qty"`
	TotalQuality     float64 `json:"total_quality"`
	TotalPerformance float64 `json:"total_performance"`
	PerformanceSum   float64 `json:"unit_performance_sum"`
}

func toUnitSnapshot(rep domain.UnitReport) unitSnapshot {
	return unitSnapshot{
		UnitName: rep.UnitName,
		Models:   rep.Models,
		Summary: unitTotals{
			TotalSuccess:     rep.TotalSuccess,
			TotalFail:        rep.TotalFail,
			TotalQty:         rep.TotalQty,
			TotalQuality:     rep.TotalQuality,
			TotalPerformance: rep.TotalPerformance,
			PerformanceSum:   rep.PerformanceSum,
		},
	}
}
