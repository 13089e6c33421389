package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ersozo/re-dashboard/internal/domain"
	"github.com/ersozo/re-dashboard/internal/repository"
)

// Repository implements the production gateway on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.ProductionGateway = (*Repository)(nil)

// ListUnits returns the distinct unit names present in the record log.
func (r *Repository) ListUnits(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT unit_name FROM product_records ORDER BY unit_name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		units = append(units, name)
	}
	return units, rows.Err()
}

// FetchModelCounts returns pass/fail counts grouped by model and target rate
// for one unit over the closed interval [start, end].
func (r *Repository) FetchModelCounts(ctx context.Context, unitName string, start, end time.Time) ([]domain.ModelRecord, error) {
	const query = `SELECT
			model,
			COUNT(*) FILTER (WHERE passed) AS success_qty,
			COUNT(*) FILTER (WHERE NOT passed) AS fail_qty,
			target_rate
		FROM product_records
		WHERE unit_name = $1 AND recorded_at BETWEEN $2 AND $3
		GROUP BY model, target_rate
		ORDER BY model`
	rows, err := r.pool.Query(ctx, query, unitName, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ModelRecord, 0)
	for rows.Next() {
		var (
			rec    domain.ModelRecord
			target sql.NullFloat64
		)
		if err := rows.Scan(&rec.Model, &rec.SuccessCount, &rec.FailCount, &target); err != nil {
			return nil, err
		}
		if target.Valid {
			value := target.Float64
			rec.TargetRate = &value
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
