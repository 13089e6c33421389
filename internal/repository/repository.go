// Package repository defines the persistence contracts consumed by the
// report services.
package repository

import (
	"context"
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
)

// ProductionGateway executes the grouped production-count queries. Callers
// pass instants already normalized to the plant's fixed offset and bound the
// call with a context deadline.
type ProductionGateway interface {
	// ListUnits returns the known production unit names in order.
	ListUnits(ctx context.Context) ([]string, error)
	// FetchModelCounts returns success/fail counts grouped by model and
	// target rate for records with start <= recorded_at <= end.
	FetchModelCounts(ctx context.Context, unitName string, start, end time.Time) ([]domain.ModelRecord, error)
}
