package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nudgekit/nudgekit/internal/domain"
)

// Evaluator checks declarative conditions against fetched rows. It carries the
// run's as-of instant so relative-time values resolve to the same cutoff for
// every row in a batch.
type Evaluator struct {
	asOf time.Time
}

func NewEvaluator(asOf time.Time) *Evaluator {
	return &Evaluator{asOf: asOf}
}

// Evaluate checks one condition against one row. Comparisons against a null
// field value are false except for the explicit null operators. Conditions in
// a spec are AND-combined by the caller.
func (e *Evaluator) Evaluate(cond domain.ConditionSpec, row domain.RowResult) (bool, error) {
	value, _ := row.Value(cond.Field)

	switch cond.Operator {
	case domain.OperatorIsNull:
		return value == nil, nil
	case domain.OperatorIsNotNull:
		return value != nil, nil
	}

	if value == nil {
		return false, nil
	}

	switch cond.Operator {
	case domain.OperatorLike:
		return e.evaluateLike(value, cond.Value)
	case domain.OperatorBetween:
		return e.evaluateBetween(value, cond.Value)
	case domain.OperatorLessThan, domain.OperatorGreaterThan,
		domain.OperatorLessOrEqual, domain.OperatorGreaterOrEqual,
		domain.OperatorEqual, domain.OperatorNotEqual:
		return e.evaluateComparison(cond.Operator, value, cond.Value)
	default:
		return false, fmt.Errorf("unknown operator: %q", cond.Operator)
	}
}

// EvaluateAll applies every condition, AND-combined. The first false or error
// short-circuits.
func (e *Evaluator) EvaluateAll(conditions []domain.ConditionSpec, row domain.RowResult) (bool, error) {
	for _, cond := range conditions {
		matched, err := e.Evaluate(cond, row)
		if err != nil {
			return false, fmt.Errorf("failed to evaluate condition on %s: %w", cond.Field, err)
		}

		if !matched {
			return false, nil
		}
	}

	return true, nil
}

// EvaluateProjected applies only the conditions whose field is present in the
// row. A condition on a field the select list does not project was already
// enforced by the query plan; re-checking it against a missing value would
// reject every fetched row.
func (e *Evaluator) EvaluateProjected(conditions []domain.ConditionSpec, row domain.RowResult) (bool, error) {
	projected := make([]domain.ConditionSpec, 0, len(conditions))
	for _, cond := range conditions {
		if _, ok := row.Value(cond.Field); ok {
			projected = append(projected, cond)
		}
	}

	return e.EvaluateAll(projected, row)
}

func (e *Evaluator) evaluateComparison(op domain.Operator, fieldValue, condValue any) (bool, error) {
	ordering, err := e.compare(fieldValue, condValue)
	if err != nil {
		return false, err
	}

	switch op {
	case domain.OperatorLessThan:
		return ordering < 0, nil
	case domain.OperatorGreaterThan:
		return ordering > 0, nil
	case domain.OperatorLessOrEqual:
		return ordering <= 0, nil
	case domain.OperatorGreaterOrEqual:
		return ordering >= 0, nil
	case domain.OperatorEqual:
		return ordering == 0, nil
	case domain.OperatorNotEqual:
		return ordering != 0, nil
	default:
		return false, fmt.Errorf("unknown comparison operator: %q", op)
	}
}

// compare orders two values type-aware: chronologically when either side is a
// timestamp, numerically when both sides coerce to numbers, lexicographically
// otherwise.
func (e *Evaluator) compare(fieldValue, condValue any) (int, error) {
	if ft, fok := asTime(fieldValue); fok {
		ct, ok := e.resolveTimeValue(condValue)
		if !ok {
			return 0, fmt.Errorf("cannot compare timestamp field with %T value", condValue)
		}

		switch {
		case ft.Before(ct):
			return -1, nil
		case ft.After(ct):
			return 1, nil
		default:
			return 0, nil
		}
	}

	if fn, fok := asNumber(fieldValue); fok {
		cn, ok := asNumber(condValue)
		if !ok {
			return 0, fmt.Errorf("cannot compare numeric field with %T value", condValue)
		}

		switch {
		case fn < cn:
			return -1, nil
		case fn > cn:
			return 1, nil
		default:
			return 0, nil
		}
	}

	fs := formatScalar(fieldValue)
	cs := formatScalar(condValue)

	return strings.Compare(fs, cs), nil
}

func (e *Evaluator) evaluateLike(fieldValue, condValue any) (bool, error) {
	pattern, ok := condValue.(string)
	if !ok {
		return false, fmt.Errorf("LIKE requires a string pattern, got %T", condValue)
	}

	re, err := likePatternToRegexp(pattern)
	if err != nil {
		return false, err
	}

	return re.MatchString(formatScalar(fieldValue)), nil
}

func (e *Evaluator) evaluateBetween(fieldValue, condValue any) (bool, error) {
	bounds, ok := condValue.([]any)
	if !ok || len(bounds) != 2 {
		return false, fmt.Errorf("BETWEEN requires a two-element value, got %T", condValue)
	}

	low, err := e.compare(fieldValue, bounds[0])
	if err != nil {
		return false, err
	}

	high, err := e.compare(fieldValue, bounds[1])
	if err != nil {
		return false, err
	}

	return low >= 0 && high <= 0, nil
}

// resolveTimeValue turns a condition value into a concrete timestamp: a
// relative-time expression resolves against the run's as-of instant, a string
// parses as RFC3339 or a date, and a time.Time passes through.
func (e *Evaluator) resolveTimeValue(value any) (time.Time, bool) {
	if t, ok := asTime(value); ok {
		return t, true
	}

	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}

	if rel, ok := ParseRelativeTime(s); ok {
		return rel.Resolve(e.asOf), true
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}

	return time.Time{}, false
}

func asTime(value any) (time.Time, bool) {
	t, ok := value.(time.Time)

	return t, ok
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatScalar renders a typed scalar the way it appears in a message or a
// lexicographic comparison.
func formatScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// likePatternToRegexp converts a SQL LIKE pattern (% and _ wildcards) into an
// anchored regular expression.
func likePatternToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?i)^")

	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile LIKE pattern %q: %w", pattern, err)
	}

	return re, nil
}
