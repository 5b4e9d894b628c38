package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nudgekit/nudgekit/internal/domain"
)

const DefaultRowLimit = 1000

var (
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	joinConditionPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*$`)
)

// Compiler turns declarative query specs into parameterized plans. Every
// identifier is validated against the schema catalog and every literal value
// becomes a bound parameter; no user-controlled string reaches the SQL text.
type Compiler struct {
	rowLimit int
}

type CompilerDependencies struct {
	// RowLimit caps fetched rows per run. Zero means DefaultRowLimit.
	RowLimit int
}

func NewCompiler(deps CompilerDependencies) *Compiler {
	rowLimit := deps.RowLimit
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	return &Compiler{rowLimit: rowLimit}
}

// Compile validates the spec against the catalog and produces a plan. Any
// unknown identifier, unknown operator, or value/column type mismatch fails
// the whole compilation.
func (c *Compiler) Compile(spec domain.QuerySpec, catalog domain.SchemaCatalog) (*domain.CompiledPlan, error) {
	if spec.MainTable == "" {
		return nil, &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Message: "main table is required"}
	}

	if !identifierPattern.MatchString(spec.MainTable) {
		return nil, &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: spec.MainTable, Message: "invalid table identifier"}
	}

	if _, ok := catalog.Table(spec.MainTable); !ok {
		return nil, &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: spec.MainTable, Message: "table not found in schema catalog"}
	}

	scope := &queryScope{catalog: catalog, tables: []string{spec.MainTable}}

	joinSQL, err := c.compileJoins(spec.Joins, scope)
	if err != nil {
		return nil, err
	}

	selectSQL, columns, err := c.compileSelect(spec, scope)
	if err != nil {
		return nil, err
	}

	whereSQL, params, err := c.compileConditions(spec.Conditions, scope)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectSQL)
	sb.WriteString(" FROM ")
	sb.WriteString(spec.MainTable)
	sb.WriteString(joinSQL)
	sb.WriteString(whereSQL)
	fmt.Fprintf(&sb, " LIMIT %d", c.rowLimit)

	return &domain.CompiledPlan{
		SQL:        sb.String(),
		Params:     params,
		Columns:    columns,
		SpecHash:   spec.Hash(),
		RowLimit:   c.rowLimit,
		Conditions: spec.Conditions,
	}, nil
}

// BindArgs resolves a plan's parameters into query arguments. Relative-time
// parameters resolve against the run's as-of instant so the whole batch sees
// one consistent cutoff.
func BindArgs(plan *domain.CompiledPlan, now time.Time) ([]any, error) {
	args := make([]any, 0, len(plan.Params))

	for _, param := range plan.Params {
		switch param.Kind {
		case domain.PlanParamStatic:
			args = append(args, param.Value)
		case domain.PlanParamRelativeTime:
			rel, ok := ParseRelativeTime(param.TimeExpr)
			if !ok {
				return nil, fmt.Errorf("failed to resolve relative time expression %q", param.TimeExpr)
			}

			args = append(args, rel.Resolve(now))
		default:
			return nil, fmt.Errorf("unknown plan parameter kind: %q", param.Kind)
		}
	}

	return args, nil
}

type queryScope struct {
	catalog domain.SchemaCatalog
	tables  []string
}

func (s *queryScope) has(table string) bool {
	for _, t := range s.tables {
		if t == table {
			return true
		}
	}

	return false
}

func (s *queryScope) add(table string) {
	if !s.has(table) {
		s.tables = append(s.tables, table)
	}
}

// resolveField resolves "table.column" or a bare column name against the
// tables in scope. Unresolved references are a compile-time error, never a
// silent no-op.
func (s *queryScope) resolveField(field string) (string, domain.SchemaColumn, error) {
	if table, column, ok := splitQualified(field); ok {
		if !s.has(table) {
			return "", domain.SchemaColumn{}, &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: field, Message: "table is not the main table or a joined table"}
		}

		col, ok := s.catalog.Column(table, column)
		if !ok {
			return "", domain.SchemaColumn{}, &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: field, Message: "column not found in schema catalog"}
		}

		return table, col, nil
	}

	if !identifierPattern.MatchString(field) {
		return "", domain.SchemaColumn{}, &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: field, Message: "invalid field identifier"}
	}

	var (
		foundTable string
		foundCol   domain.SchemaColumn
		matches    int
	)

	for _, table := range s.tables {
		if col, ok := s.catalog.Column(table, field); ok {
			foundTable, foundCol = table, col
			matches++
		}
	}

	switch matches {
	case 0:
		return "", domain.SchemaColumn{}, &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: field, Message: "column not found in any table in scope"}
	case 1:
		return foundTable, foundCol, nil
	default:
		return "", domain.SchemaColumn{}, &domain.CompileError{Kind: domain.CompileErrorAmbiguousIdentifier, Identifier: field, Message: "column exists in multiple tables, qualify it"}
	}
}

func splitQualified(field string) (table, column string, ok bool) {
	parts := strings.SplitN(field, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	if !identifierPattern.MatchString(parts[0]) || !identifierPattern.MatchString(parts[1]) {
		return "", "", false
	}

	return parts[0], parts[1], true
}

func (c *Compiler) compileJoins(joins []domain.JoinSpec, scope *queryScope) (string, error) {
	var sb strings.Builder

	for _, join := range joins {
		switch join.JoinType {
		case domain.JoinTypeInner, domain.JoinTypeLeft, domain.JoinTypeRight:
		default:
			return "", &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: string(join.JoinType), Message: "unknown join type"}
		}

		if _, ok := scope.catalog.Table(join.Table); !ok {
			return "", &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: join.Table, Message: "joined table not found in schema catalog"}
		}

		m := joinConditionPattern.FindStringSubmatch(join.Condition)
		if m == nil {
			return "", &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: join.Condition, Message: "join condition must be of the form table.column = table.column"}
		}

		scope.add(join.Table)

		for _, side := range [][2]string{{m[1], m[2]}, {m[3], m[4]}} {
			if !scope.has(side[0]) {
				return "", &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: side[0] + "." + side[1], Message: "join condition references a table that is not in scope"}
			}

			if _, ok := scope.catalog.Column(side[0], side[1]); !ok {
				return "", &domain.CompileError{Kind: domain.CompileErrorUnknownIdentifier, Identifier: side[0] + "." + side[1], Message: "join condition references an unknown column"}
			}
		}

		fmt.Fprintf(&sb, " %s JOIN %s ON %s.%s = %s.%s", join.JoinType, join.Table, m[1], m[2], m[3], m[4])
	}

	return sb.String(), nil
}

func (c *Compiler) compileSelect(spec domain.QuerySpec, scope *queryScope) (string, []domain.SelectedColumn, error) {
	if len(spec.SelectFields) == 0 {
		table, _ := scope.catalog.Table(spec.MainTable)

		columns := make([]domain.SelectedColumn, 0, len(table.Columns))
		for _, col := range table.Columns {
			columns = append(columns, domain.SelectedColumn{Table: spec.MainTable, Column: col.Name})
		}

		return spec.MainTable + ".*", columns, nil
	}

	parts := make([]string, 0, len(spec.SelectFields))
	columns := make([]domain.SelectedColumn, 0, len(spec.SelectFields))

	for _, field := range spec.SelectFields {
		table, col, err := scope.resolveField(field)
		if err != nil {
			return "", nil, err
		}

		parts = append(parts, table+"."+col.Name)
		columns = append(columns, domain.SelectedColumn{Table: table, Column: col.Name})
	}

	return strings.Join(parts, ", "), columns, nil
}

func (c *Compiler) compileConditions(conditions []domain.ConditionSpec, scope *queryScope) (string, []domain.PlanParam, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}

	var (
		predicates []string
		params     []domain.PlanParam
	)

	nextPlaceholder := func() string {
		return fmt.Sprintf("$%d", len(params))
	}

	for _, cond := range conditions {
		table, col, err := scope.resolveField(cond.Field)
		if err != nil {
			return "", nil, err
		}

		qualified := table + "." + col.Name

		switch cond.Operator {
		case domain.OperatorIsNull:
			predicates = append(predicates, qualified+" IS NULL")
		case domain.OperatorIsNotNull:
			predicates = append(predicates, qualified+" IS NOT NULL")
		case domain.OperatorBetween:
			bounds, ok := cond.Value.([]any)
			if !ok || len(bounds) != 2 {
				return "", nil, &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: cond.Field, Message: "BETWEEN requires a two-element value"}
			}

			low, err := conditionParam(col, bounds[0], cond.Field)
			if err != nil {
				return "", nil, err
			}
			params = append(params, low)
			lowPlaceholder := nextPlaceholder()

			high, err := conditionParam(col, bounds[1], cond.Field)
			if err != nil {
				return "", nil, err
			}
			params = append(params, high)
			highPlaceholder := nextPlaceholder()

			predicates = append(predicates, fmt.Sprintf("%s BETWEEN %s AND %s", qualified, lowPlaceholder, highPlaceholder))
		case domain.OperatorLike:
			if col.Type != domain.ScalarString {
				return "", nil, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: cond.Field, Message: "LIKE requires a string column"}
			}

			pattern, ok := cond.Value.(string)
			if !ok {
				return "", nil, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: cond.Field, Message: "LIKE requires a string pattern"}
			}

			params = append(params, domain.PlanParam{Kind: domain.PlanParamStatic, Value: pattern})
			predicates = append(predicates, fmt.Sprintf("%s LIKE %s", qualified, nextPlaceholder()))
		case domain.OperatorLessThan, domain.OperatorGreaterThan,
			domain.OperatorLessOrEqual, domain.OperatorGreaterOrEqual,
			domain.OperatorEqual, domain.OperatorNotEqual:
			if col.Type == domain.ScalarBoolean && cond.Operator != domain.OperatorEqual && cond.Operator != domain.OperatorNotEqual {
				return "", nil, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: cond.Field, Message: "boolean columns support only = and !="}
			}

			param, err := conditionParam(col, cond.Value, cond.Field)
			if err != nil {
				return "", nil, err
			}

			params = append(params, param)
			predicates = append(predicates, fmt.Sprintf("%s %s %s", qualified, sqlComparison(cond.Operator), nextPlaceholder()))
		default:
			return "", nil, &domain.CompileError{Kind: domain.CompileErrorUnknownOperator, Identifier: string(cond.Operator), Message: "unknown operator"}
		}
	}

	return " WHERE " + strings.Join(predicates, " AND "), params, nil
}

// conditionParam type-checks a literal against its column and produces the
// bound parameter. Relative-time expressions on timestamp columns become
// deferred parameters resolved at run start.
func conditionParam(col domain.SchemaColumn, value any, field string) (domain.PlanParam, error) {
	if value == nil {
		return domain.PlanParam{}, &domain.CompileError{Kind: domain.CompileErrorMalformedSpec, Identifier: field, Message: "condition value is missing"}
	}

	switch col.Type {
	case domain.ScalarNumber:
		n, ok := asNumber(value)
		if !ok {
			return domain.PlanParam{}, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: field, Message: fmt.Sprintf("numeric column cannot be compared with %T value", value)}
		}

		return domain.PlanParam{Kind: domain.PlanParamStatic, Value: n}, nil
	case domain.ScalarTimestamp:
		if s, ok := value.(string); ok {
			if _, isRel := ParseRelativeTime(s); isRel {
				return domain.PlanParam{Kind: domain.PlanParamRelativeTime, TimeExpr: s}, nil
			}

			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return domain.PlanParam{Kind: domain.PlanParamStatic, Value: t}, nil
			}

			if t, err := time.Parse("2006-01-02", s); err == nil {
				return domain.PlanParam{Kind: domain.PlanParamStatic, Value: t}, nil
			}
		}

		if t, ok := value.(time.Time); ok {
			return domain.PlanParam{Kind: domain.PlanParamStatic, Value: t}, nil
		}

		return domain.PlanParam{}, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: field, Message: "timestamp column requires an RFC3339 time, a date, or a relative time expression"}
	case domain.ScalarBoolean:
		b, ok := value.(bool)
		if !ok {
			return domain.PlanParam{}, &domain.CompileError{Kind: domain.CompileErrorTypeMismatch, Identifier: field, Message: fmt.Sprintf("boolean column cannot be compared with %T value", value)}
		}

		return domain.PlanParam{Kind: domain.PlanParamStatic, Value: b}, nil
	default:
		return domain.PlanParam{Kind: domain.PlanParamStatic, Value: formatScalar(value)}, nil
	}
}

func sqlComparison(op domain.Operator) string {
	if op == domain.OperatorNotEqual {
		return "<>"
	}

	return string(op)
}
