package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudgekit/nudgekit/internal/domain"
)

func testRow(columns []string, values []any) domain.RowResult {
	return domain.NewRowResult(columns, values)
}

func TestEvaluator_Evaluate_Numeric(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())

	tests := []struct {
		name     string
		operator domain.Operator
		value    any
		field    any
		expected bool
	}{
		{name: "less than matches", operator: domain.OperatorLessThan, value: 50.0, field: 42.0, expected: true},
		{name: "less than at boundary", operator: domain.OperatorLessThan, value: 50.0, field: 50.0, expected: false},
		{name: "less than above", operator: domain.OperatorLessThan, value: 50.0, field: 73.0, expected: false},
		{name: "greater or equal at boundary", operator: domain.OperatorGreaterOrEqual, value: 50.0, field: 50.0, expected: true},
		{name: "equal with int64 field", operator: domain.OperatorEqual, value: 7.0, field: int64(7), expected: true},
		{name: "not equal", operator: domain.OperatorNotEqual, value: 7.0, field: int64(8), expected: true},
		{name: "numeric string field coerces", operator: domain.OperatorGreaterThan, value: 10.0, field: "12.5", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := testRow([]string{"progress_percent"}, []any{tt.field})
			cond := domain.ConditionSpec{Field: "progress_percent", Operator: tt.operator, Value: tt.value}

			matched, err := evaluator.Evaluate(cond, row)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_NullSemantics(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow([]string{"progress_percent"}, []any{nil})

	tests := []struct {
		name     string
		operator domain.Operator
		value    any
		expected bool
	}{
		{name: "comparison against null is false", operator: domain.OperatorLessThan, value: 50.0, expected: false},
		{name: "equality against null is false", operator: domain.OperatorEqual, value: 0.0, expected: false},
		{name: "is null matches", operator: domain.OperatorIsNull, expected: true},
		{name: "is not null rejects", operator: domain.OperatorIsNotNull, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := domain.ConditionSpec{Field: "progress_percent", Operator: tt.operator, Value: tt.value}

			matched, err := evaluator.Evaluate(cond, row)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_MissingFieldTreatedAsNull(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow([]string{"email"}, []any{"student@example.com"})

	matched, err := evaluator.Evaluate(domain.ConditionSpec{
		Field:    "progress_percent",
		Operator: domain.OperatorLessThan,
		Value:    50.0,
	}, row)

	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = evaluator.Evaluate(domain.ConditionSpec{
		Field:    "progress_percent",
		Operator: domain.OperatorIsNull,
	}, row)

	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_Timestamps(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	evaluator := NewEvaluator(asOf)

	tests := []struct {
		name      string
		lastLogin time.Time
		operator  domain.Operator
		value     any
		expected  bool
	}{
		{
			name:      "older than relative cutoff",
			lastLogin: asOf.Add(-5 * 24 * time.Hour),
			operator:  domain.OperatorLessThan,
			value:     "now minus 3 days",
			expected:  true,
		},
		{
			name:      "newer than relative cutoff",
			lastLogin: asOf.Add(-time.Hour),
			operator:  domain.OperatorLessThan,
			value:     "now minus 3 days",
			expected:  false,
		},
		{
			name:      "rfc3339 literal",
			lastLogin: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			operator:  domain.OperatorGreaterThan,
			value:     "2026-02-01T00:00:00Z",
			expected:  true,
		},
		{
			name:      "date literal",
			lastLogin: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			operator:  domain.OperatorLessThan,
			value:     "2026-02-01",
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := testRow([]string{"last_login"}, []any{tt.lastLogin})
			cond := domain.ConditionSpec{Field: "last_login", Operator: tt.operator, Value: tt.value}

			matched, err := evaluator.Evaluate(cond, row)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_RelativeCutoffConsistentAcrossRows(t *testing.T) {
	// Two evaluations against the same evaluator must resolve "now minus 1 hour"
	// to the same instant even if wall-clock time moves between rows.
	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	evaluator := NewEvaluator(asOf)

	cond := domain.ConditionSpec{Field: "last_login", Operator: domain.OperatorLessThan, Value: "now minus 1 hour"}
	boundary := asOf.Add(-time.Hour)

	matched, err := evaluator.Evaluate(cond, testRow([]string{"last_login"}, []any{boundary}))
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = evaluator.Evaluate(cond, testRow([]string{"last_login"}, []any{boundary.Add(-time.Second)}))
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluator_Evaluate_Like(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())

	tests := []struct {
		name     string
		pattern  string
		field    string
		expected bool
	}{
		{name: "prefix wildcard", pattern: "%@example.com", field: "student@example.com", expected: true},
		{name: "no match", pattern: "%@example.com", field: "student@other.org", expected: false},
		{name: "underscore wildcard", pattern: "user_", field: "user1", expected: true},
		{name: "underscore needs exactly one", pattern: "user_", field: "user12", expected: false},
		{name: "case insensitive", pattern: "COURSE%", field: "course-101", expected: true},
		{name: "regex metacharacters are literal", pattern: "a.b%", field: "axb-rest", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := testRow([]string{"email"}, []any{tt.field})
			cond := domain.ConditionSpec{Field: "email", Operator: domain.OperatorLike, Value: tt.pattern}

			matched, err := evaluator.Evaluate(cond, row)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_Between(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())

	tests := []struct {
		name     string
		field    any
		bounds   []any
		expected bool
	}{
		{name: "inside range", field: 50.0, bounds: []any{10.0, 90.0}, expected: true},
		{name: "lower bound inclusive", field: 10.0, bounds: []any{10.0, 90.0}, expected: true},
		{name: "upper bound inclusive", field: 90.0, bounds: []any{10.0, 90.0}, expected: true},
		{name: "below range", field: 9.0, bounds: []any{10.0, 90.0}, expected: false},
		{name: "above range", field: 91.0, bounds: []any{10.0, 90.0}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := testRow([]string{"progress_percent"}, []any{tt.field})
			cond := domain.ConditionSpec{Field: "progress_percent", Operator: domain.OperatorBetween, Value: tt.bounds}

			matched, err := evaluator.Evaluate(cond, row)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluator_Evaluate_UnknownOperator(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow([]string{"email"}, []any{"a@b.c"})

	_, err := evaluator.Evaluate(domain.ConditionSpec{Field: "email", Operator: "~~"}, row)

	assert.Error(t, err)
}

func TestEvaluator_EvaluateAll(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow(
		[]string{"progress_percent", "email", "is_active"},
		[]any{42.0, "student@example.com", true},
	)

	t.Run("all conditions must hold", func(t *testing.T) {
		matched, err := evaluator.EvaluateAll([]domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
			{Field: "is_active", Operator: domain.OperatorEqual, Value: true},
		}, row)

		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("one false condition rejects the row", func(t *testing.T) {
		matched, err := evaluator.EvaluateAll([]domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
			{Field: "email", Operator: domain.OperatorLike, Value: "%@other.org"},
		}, row)

		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("empty condition list matches", func(t *testing.T) {
		matched, err := evaluator.EvaluateAll(nil, row)

		require.NoError(t, err)
		assert.True(t, matched)
	})
}

func TestEvaluator_EvaluateProjected(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow([]string{"student_id", "email"}, []any{"s1", "student@example.com"})

	t.Run("condition on unprojected field is skipped", func(t *testing.T) {
		matched, err := evaluator.EvaluateProjected([]domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
		}, row)

		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("is null on unprojected field is skipped", func(t *testing.T) {
		matched, err := evaluator.EvaluateProjected([]domain.ConditionSpec{
			{Field: "completed_at", Operator: domain.OperatorIsNull},
		}, row)

		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("condition on projected field still rejects", func(t *testing.T) {
		matched, err := evaluator.EvaluateProjected([]domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
			{Field: "email", Operator: domain.OperatorLike, Value: "%@other.org"},
		}, row)

		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("projected null is still re-checked", func(t *testing.T) {
		nullRow := testRow([]string{"email", "progress_percent"}, []any{"student@example.com", nil})

		matched, err := evaluator.EvaluateProjected([]domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
		}, nullRow)

		require.NoError(t, err)
		assert.False(t, matched)
	})
}

func TestEvaluator_Evaluate_BooleanAndString(t *testing.T) {
	evaluator := NewEvaluator(time.Now().UTC())
	row := testRow([]string{"is_active", "status"}, []any{false, "enrolled"})

	matched, err := evaluator.Evaluate(domain.ConditionSpec{
		Field: "is_active", Operator: domain.OperatorEqual, Value: false,
	}, row)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = evaluator.Evaluate(domain.ConditionSpec{
		Field: "status", Operator: domain.OperatorNotEqual, Value: "completed",
	}, row)
	require.NoError(t, err)
	assert.True(t, matched)
}
