package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudgekit/nudgekit/internal/domain"
)

func testCatalog() domain.SchemaCatalog {
	return domain.SchemaCatalog{
		DiscoveredAt: time.Now().UTC(),
		Tables: []domain.SchemaTable{
			{
				Name: "students",
				Columns: []domain.SchemaColumn{
					{Name: "id", Type: domain.ScalarString},
					{Name: "email", Type: domain.ScalarString},
					{Name: "name", Type: domain.ScalarString},
					{Name: "last_login", Type: domain.ScalarTimestamp, Nullable: true},
					{Name: "is_active", Type: domain.ScalarBoolean},
				},
			},
			{
				Name: "enrollments",
				Columns: []domain.SchemaColumn{
					{Name: "id", Type: domain.ScalarString},
					{Name: "student_id", Type: domain.ScalarString},
					{Name: "course_id", Type: domain.ScalarString},
					{Name: "progress_percent", Type: domain.ScalarNumber},
					{Name: "enrolled_at", Type: domain.ScalarTimestamp},
				},
				ForeignKeys: []domain.ForeignKey{
					{Column: "student_id", ReferencedTable: "students", ReferencedColumn: "id"},
					{Column: "course_id", ReferencedTable: "courses", ReferencedColumn: "id"},
				},
			},
			{
				Name: "courses",
				Columns: []domain.SchemaColumn{
					{Name: "id", Type: domain.ScalarString},
					{Name: "title", Type: domain.ScalarString},
				},
			},
		},
	}
}

func compileErrorKind(t *testing.T, err error) domain.CompileErrorKind {
	t.Helper()

	var compileErr *domain.CompileError
	require.ErrorAs(t, err, &compileErr)

	return compileErr.Kind
}

func TestCompiler_Compile_SimpleQuery(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{
		MainTable:    "students",
		SelectFields: []string{"students.email", "students.name"},
		Conditions: []domain.ConditionSpec{
			{Field: "students.is_active", Operator: domain.OperatorEqual, Value: true},
		},
	}, testCatalog())

	require.NoError(t, err)
	assert.Equal(t, "SELECT students.email, students.name FROM students WHERE students.is_active = $1 LIMIT 1000", plan.SQL)
	assert.Equal(t, 1, plan.ParamCount())
	assert.Equal(t, DefaultRowLimit, plan.RowLimit)
}

func TestCompiler_Compile_DefaultSelectExpandsMainTable(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{MainTable: "courses"}, testCatalog())

	require.NoError(t, err)
	assert.Equal(t, "SELECT courses.* FROM courses LIMIT 1000", plan.SQL)
	assert.Equal(t, []domain.SelectedColumn{
		{Table: "courses", Column: "id"},
		{Table: "courses", Column: "title"},
	}, plan.Columns)
}

func TestCompiler_Compile_Joins(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{
		MainTable: "students",
		Joins: []domain.JoinSpec{
			{Table: "enrollments", JoinType: domain.JoinTypeInner, Condition: "students.id = enrollments.student_id"},
			{Table: "courses", JoinType: domain.JoinTypeLeft, Condition: "enrollments.course_id = courses.id"},
		},
		SelectFields: []string{"students.email", "courses.title", "enrollments.progress_percent"},
		Conditions: []domain.ConditionSpec{
			{Field: "enrollments.progress_percent", Operator: domain.OperatorLessThan, Value: 50.0},
		},
	}, testCatalog())

	require.NoError(t, err)
	assert.Equal(t,
		"SELECT students.email, courses.title, enrollments.progress_percent"+
			" FROM students"+
			" INNER JOIN enrollments ON students.id = enrollments.student_id"+
			" LEFT JOIN courses ON enrollments.course_id = courses.id"+
			" WHERE enrollments.progress_percent < $1 LIMIT 1000",
		plan.SQL)
	assert.Equal(t, 1, plan.ParamCount())
}

func TestCompiler_Compile_ParamCountMatchesLiteralValues(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{
		MainTable: "enrollments",
		Conditions: []domain.ConditionSpec{
			{Field: "progress_percent", Operator: domain.OperatorBetween, Value: []any{10.0, 90.0}},
			{Field: "enrolled_at", Operator: domain.OperatorLessThan, Value: "now minus 3 days"},
			{Field: "course_id", Operator: domain.OperatorEqual, Value: "course-101"},
			{Field: "student_id", Operator: domain.OperatorIsNotNull},
		},
	}, testCatalog())

	require.NoError(t, err)
	// BETWEEN binds two, the timestamp and equality bind one each, IS NOT NULL
	// binds none.
	assert.Equal(t, 4, plan.ParamCount())
	assert.Contains(t, plan.SQL, "BETWEEN $1 AND $2")
	assert.Contains(t, plan.SQL, "enrollments.enrolled_at < $3")
	assert.Contains(t, plan.SQL, "enrollments.course_id = $4")
	assert.Contains(t, plan.SQL, "enrollments.student_id IS NOT NULL")
}

func TestCompiler_Compile_RelativeTimeBecomesDeferredParam(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{
		MainTable: "students",
		Conditions: []domain.ConditionSpec{
			{Field: "last_login", Operator: domain.OperatorLessThan, Value: "now minus 2 weeks"},
		},
	}, testCatalog())

	require.NoError(t, err)
	require.Len(t, plan.Params, 1)
	assert.Equal(t, domain.PlanParamRelativeTime, plan.Params[0].Kind)
	assert.Equal(t, "now minus 2 weeks", plan.Params[0].TimeExpr)
	assert.NotContains(t, plan.SQL, "now minus")
}

func TestCompiler_Compile_Errors(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	tests := []struct {
		name     string
		spec     domain.QuerySpec
		expected domain.CompileErrorKind
	}{
		{
			name:     "unknown main table",
			spec:     domain.QuerySpec{MainTable: "no_such_table"},
			expected: domain.CompileErrorUnknownIdentifier,
		},
		{
			name:     "missing main table",
			spec:     domain.QuerySpec{},
			expected: domain.CompileErrorMalformedSpec,
		},
		{
			name:     "injection in table name",
			spec:     domain.QuerySpec{MainTable: "students; DROP TABLE students"},
			expected: domain.CompileErrorMalformedSpec,
		},
		{
			name: "unknown condition column",
			spec: domain.QuerySpec{
				MainTable:  "students",
				Conditions: []domain.ConditionSpec{{Field: "no_such_column", Operator: domain.OperatorEqual, Value: "x"}},
			},
			expected: domain.CompileErrorUnknownIdentifier,
		},
		{
			name: "unknown select column",
			spec: domain.QuerySpec{
				MainTable:    "students",
				SelectFields: []string{"students.no_such_column"},
			},
			expected: domain.CompileErrorUnknownIdentifier,
		},
		{
			name: "column from table not in scope",
			spec: domain.QuerySpec{
				MainTable:    "students",
				SelectFields: []string{"enrollments.progress_percent"},
			},
			expected: domain.CompileErrorUnknownIdentifier,
		},
		{
			name: "ambiguous bare column",
			spec: domain.QuerySpec{
				MainTable: "students",
				Joins: []domain.JoinSpec{
					{Table: "enrollments", JoinType: domain.JoinTypeInner, Condition: "students.id = enrollments.student_id"},
				},
				SelectFields: []string{"id"},
			},
			expected: domain.CompileErrorAmbiguousIdentifier,
		},
		{
			name: "unknown operator",
			spec: domain.QuerySpec{
				MainTable:  "students",
				Conditions: []domain.ConditionSpec{{Field: "email", Operator: "~~", Value: "x"}},
			},
			expected: domain.CompileErrorUnknownOperator,
		},
		{
			name: "string value on numeric column",
			spec: domain.QuerySpec{
				MainTable:  "enrollments",
				Conditions: []domain.ConditionSpec{{Field: "progress_percent", Operator: domain.OperatorLessThan, Value: "lots"}},
			},
			expected: domain.CompileErrorTypeMismatch,
		},
		{
			name: "like on numeric column",
			spec: domain.QuerySpec{
				MainTable:  "enrollments",
				Conditions: []domain.ConditionSpec{{Field: "progress_percent", Operator: domain.OperatorLike, Value: "5%"}},
			},
			expected: domain.CompileErrorTypeMismatch,
		},
		{
			name: "ordering on boolean column",
			spec: domain.QuerySpec{
				MainTable:  "students",
				Conditions: []domain.ConditionSpec{{Field: "is_active", Operator: domain.OperatorLessThan, Value: true}},
			},
			expected: domain.CompileErrorTypeMismatch,
		},
		{
			name: "unknown join table",
			spec: domain.QuerySpec{
				MainTable: "students",
				Joins:     []domain.JoinSpec{{Table: "no_such_table", JoinType: domain.JoinTypeInner, Condition: "students.id = no_such_table.id"}},
			},
			expected: domain.CompileErrorUnknownIdentifier,
		},
		{
			name: "malformed join condition",
			spec: domain.QuerySpec{
				MainTable: "students",
				Joins:     []domain.JoinSpec{{Table: "enrollments", JoinType: domain.JoinTypeInner, Condition: "1=1; DELETE FROM students"}},
			},
			expected: domain.CompileErrorMalformedSpec,
		},
		{
			name: "unknown join type",
			spec: domain.QuerySpec{
				MainTable: "students",
				Joins:     []domain.JoinSpec{{Table: "enrollments", JoinType: "CROSS", Condition: "students.id = enrollments.student_id"}},
			},
			expected: domain.CompileErrorMalformedSpec,
		},
		{
			name: "between with one bound",
			spec: domain.QuerySpec{
				MainTable:  "enrollments",
				Conditions: []domain.ConditionSpec{{Field: "progress_percent", Operator: domain.OperatorBetween, Value: []any{10.0}}},
			},
			expected: domain.CompileErrorMalformedSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compiler.Compile(tt.spec, testCatalog())

			require.Error(t, err)
			assert.Equal(t, tt.expected, compileErrorKind(t, err))
		})
	}
}

func TestCompiler_Compile_CustomRowLimit(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{RowLimit: 25})

	plan, err := compiler.Compile(domain.QuerySpec{MainTable: "courses"}, testCatalog())

	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "LIMIT 25")
	assert.Equal(t, 25, plan.RowLimit)
}

func TestBindArgs(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	plan := &domain.CompiledPlan{
		Params: []domain.PlanParam{
			{Kind: domain.PlanParamStatic, Value: 50.0},
			{Kind: domain.PlanParamRelativeTime, TimeExpr: "now minus 3 days"},
		},
	}

	args, err := BindArgs(plan, now)

	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, 50.0, args[0])
	assert.Equal(t, now.Add(-3*24*time.Hour), args[1])
}

func TestBindArgs_UnknownKind(t *testing.T) {
	plan := &domain.CompiledPlan{Params: []domain.PlanParam{{Kind: "mystery"}}}

	_, err := BindArgs(plan, time.Now().UTC())

	assert.Error(t, err)
}

func TestCompiler_Compile_NotEqualUsesSQLSpelling(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	plan, err := compiler.Compile(domain.QuerySpec{
		MainTable:  "students",
		Conditions: []domain.ConditionSpec{{Field: "email", Operator: domain.OperatorNotEqual, Value: "x@y.z"}},
	}, testCatalog())

	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "students.email <> $1")
}

func TestPlanCache(t *testing.T) {
	cache := NewPlanCache()
	compiler := NewCompiler(CompilerDependencies{})

	spec := domain.QuerySpec{MainTable: "students"}
	plan, err := compiler.Compile(spec, testCatalog())
	require.NoError(t, err)

	_, ok := cache.Get(spec.Hash())
	assert.False(t, ok)

	cache.Put(plan)

	cached, ok := cache.Get(spec.Hash())
	require.True(t, ok)
	assert.Same(t, plan, cached)

	// An edited spec has a different hash and must miss.
	edited := domain.QuerySpec{MainTable: "students", SelectFields: []string{"students.email"}}
	_, ok = cache.Get(edited.Hash())
	assert.False(t, ok)

	cache.Invalidate()

	_, ok = cache.Get(spec.Hash())
	assert.False(t, ok)
}

func TestCompiler_Compile_ErrorIsCompileError(t *testing.T) {
	compiler := NewCompiler(CompilerDependencies{})

	_, err := compiler.Compile(domain.QuerySpec{MainTable: "missing"}, testCatalog())

	var compileErr *domain.CompileError
	assert.True(t, errors.As(err, &compileErr))
}
