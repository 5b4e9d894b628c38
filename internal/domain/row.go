package domain

// RowResult is one fetched row: an ordered mapping from selected field name to
// a typed scalar (string, float64, int64, bool, time.Time, or nil). A row is
// produced fresh per fetch and never mutated afterwards.
type RowResult struct {
	columns []string
	values  map[string]any
}

// NewRowResult builds a row from a result set's columns and values. When a
// join projects the same column name from two tables, the first occurrence in
// selection order wins; reorder select_fields to reach the other one.
func NewRowResult(columns []string, values []any) RowResult {
	byName := make(map[string]any, len(columns))
	for i, col := range columns {
		if i >= len(values) {
			break
		}

		if _, exists := byName[col]; exists {
			continue
		}

		byName[col] = values[i]
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return RowResult{columns: cols, values: byName}
}

// Columns returns the field names in selection order.
func (r RowResult) Columns() []string {
	return r.columns
}

// Value looks a field up by name. Qualified references such as
// "students.email" fall back to the bare column name, since result columns
// carry unqualified names.
func (r RowResult) Value(field string) (any, bool) {
	if v, ok := r.values[field]; ok {
		return v, true
	}

	if bare := bareFieldName(field); bare != field {
		v, ok := r.values[bare]
		return v, ok
	}

	return nil, false
}

func bareFieldName(field string) string {
	for i := len(field) - 1; i >= 0; i-- {
		if field[i] == '.' {
			return field[i+1:]
		}
	}

	return field
}
