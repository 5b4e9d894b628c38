package domain

import "context"

// RowIterator streams a finite query result. It is not restartable mid-stream;
// callers pull rows until Next returns false and then check Err.
type RowIterator interface {
	Next() bool
	Row() RowResult
	Err() error
	Close()
}

// DataAccessor executes compiled plans. Args carry the plan's bound parameter
// values, already resolved to a single as-of instant for the run.
type DataAccessor interface {
	ExecutePlan(ctx context.Context, plan *CompiledPlan, args []any) (RowIterator, error)
}
