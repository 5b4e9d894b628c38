package managers

import (
	"context"
	"errors"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// pgDataAccessor executes compiled plans against PostgreSQL and streams rows
// back; result sets are never materialized in memory ahead of the runner.
type pgDataAccessor struct {
	pool *pgxpool.Pool
}

type PGDataAccessorDependencies struct {
	Pool *pgxpool.Pool
}

func NewPGDataAccessor(deps PGDataAccessorDependencies) domain.DataAccessor {
	return &pgDataAccessor{pool: deps.Pool}
}

func (a *pgDataAccessor) ExecutePlan(ctx context.Context, plan *domain.CompiledPlan, args []any) (domain.RowIterator, error) {
	rows, err := a.pool.Query(ctx, plan.SQL, args...)
	if err != nil {
		return nil, classifyDataAccessError(err)
	}

	return &pgRowIterator{rows: rows}, nil
}

func classifyDataAccessError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.DataAccessError{Kind: domain.DataAccessTimeout, Err: err}
	case isQueryRejected(err):
		return &domain.DataAccessError{Kind: domain.DataAccessQueryRejected, Err: err}
	default:
		return &domain.DataAccessError{Kind: domain.DataAccessConnectionLost, Err: err}
	}
}

func isQueryRejected(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr)
}

type pgRowIterator struct {
	rows    pgx.Rows
	current domain.RowResult
	err     error
}

func (it *pgRowIterator) Next() bool {
	if it.err != nil {
		return false
	}

	if !it.rows.Next() {
		return false
	}

	values, err := it.rows.Values()
	if err != nil {
		it.err = classifyDataAccessError(err)
		return false
	}

	descriptions := it.rows.FieldDescriptions()
	columns := make([]string, len(descriptions))
	normalized := make([]any, len(values))

	for i, description := range descriptions {
		columns[i] = description.Name
	}

	for i, value := range values {
		normalized[i] = normalizeScalar(value)
	}

	it.current = domain.NewRowResult(columns, normalized)

	return true
}

func (it *pgRowIterator) Row() domain.RowResult {
	return it.current
}

func (it *pgRowIterator) Err() error {
	if it.err != nil {
		return it.err
	}

	if err := it.rows.Err(); err != nil {
		return classifyDataAccessError(err)
	}

	return nil
}

func (it *pgRowIterator) Close() {
	it.rows.Close()
}

// normalizeScalar flattens pgx driver types onto the scalar set the engine
// works with: string, float64, int64, bool, time.Time, nil.
func normalizeScalar(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f
	default:
		return v
	}
}
