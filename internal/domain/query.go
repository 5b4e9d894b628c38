package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type JoinType string

const (
	JoinTypeInner JoinType = "INNER"
	JoinTypeLeft  JoinType = "LEFT"
	JoinTypeRight JoinType = "RIGHT"
)

type Operator string

const (
	OperatorLessThan       Operator = "<"
	OperatorGreaterThan    Operator = ">"
	OperatorLessOrEqual    Operator = "<="
	OperatorGreaterOrEqual Operator = ">="
	OperatorEqual          Operator = "="
	OperatorNotEqual       Operator = "!="
	OperatorLike           Operator = "LIKE"
	OperatorBetween        Operator = "BETWEEN"
	OperatorIsNull         Operator = "IS NULL"
	OperatorIsNotNull      Operator = "IS NOT NULL"
)

// QuerySpec is the declarative query shape carried in an agent's query config.
// Field order is significant: joins appear in declared order, selected fields
// in listed order.
type QuerySpec struct {
	MainTable    string          `json:"main_table"`
	Joins        []JoinSpec      `json:"joins,omitempty"`
	Conditions   []ConditionSpec `json:"conditions,omitempty"`
	SelectFields []string        `json:"select_fields,omitempty"`
}

type JoinSpec struct {
	Table    string   `json:"table"`
	JoinType JoinType `json:"join_type"`
	// Condition is an equality join of the form "left_table.col = right_table.col".
	Condition string `json:"condition"`
}

// ConditionSpec is one filter predicate. Value holds a literal scalar, a
// two-element slice for BETWEEN, or a relative-time expression such as
// "now minus 3 days". IS NULL / IS NOT NULL conditions carry no value.
type ConditionSpec struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Hash returns the content hash identifying this spec. Two specs with the
// same content hash compile to the same plan, which is what makes the plan
// cache safe: a config edit changes the hash and misses the cache.
func (s QuerySpec) Hash() string {
	raw, err := json.Marshal(s)
	if err != nil {
		// QuerySpec contains only JSON-decodable values, so this cannot fail
		// for specs that came from config blobs.
		return ""
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}

// PlanParamKind distinguishes parameters bound from literal values in the
// spec from parameters whose value is a relative-time expression resolved
// once per run.
type PlanParamKind string

const (
	PlanParamStatic       PlanParamKind = "static"
	PlanParamRelativeTime PlanParamKind = "relative_time"
)

type PlanParam struct {
	Kind     PlanParamKind
	Value    any
	TimeExpr string
}

type SelectedColumn struct {
	Table  string
	Column string
}

// CompiledPlan is the validated, parameterized representation of a QuerySpec.
// It is produced by the compiler and consumed only by the data-access
// collaborator; no user-controlled string is ever concatenated into SQL.
type CompiledPlan struct {
	SQL      string
	Params   []PlanParam
	Columns  []SelectedColumn
	SpecHash string
	RowLimit int

	// Conditions are re-checked per row by the runner as defense in depth.
	Conditions []ConditionSpec
}

// ParamCount returns the number of bound parameters, which equals the number
// of literal condition values in the source spec.
func (p *CompiledPlan) ParamCount() int {
	return len(p.Params)
}
