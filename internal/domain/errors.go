package domain

import "fmt"

type CompileErrorKind string

const (
	CompileErrorUnknownIdentifier   CompileErrorKind = "unknown_identifier"
	CompileErrorAmbiguousIdentifier CompileErrorKind = "ambiguous_identifier"
	CompileErrorUnknownOperator     CompileErrorKind = "unknown_operator"
	CompileErrorTypeMismatch        CompileErrorKind = "type_mismatch"
	CompileErrorMalformedSpec       CompileErrorKind = "malformed_spec"
)

// CompileError reports a rejected QuerySpec. It is surfaced at
// configuration-activation time where possible and always fails the whole
// compilation; there are no per-row silent skips.
type CompileError struct {
	Kind       CompileErrorKind
	Identifier string
	Message    string
}

func (e *CompileError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("compile error (%s): %s: %s", e.Kind, e.Identifier, e.Message)
	}

	return fmt.Sprintf("compile error (%s): %s", e.Kind, e.Message)
}

type DataAccessErrorKind string

const (
	DataAccessConnectionLost DataAccessErrorKind = "connection_lost"
	DataAccessQueryRejected  DataAccessErrorKind = "query_rejected"
	DataAccessTimeout        DataAccessErrorKind = "timeout"
)

// DataAccessError aborts a single run. The configuration stays active and is
// retried on its next scheduled tick.
type DataAccessError struct {
	Kind DataAccessErrorKind
	Err  error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access error (%s): %v", e.Kind, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

type RenderErrorKind string

const (
	RenderErrorMissingField RenderErrorKind = "missing_field"
)

// RenderError rejects a template for one row. An unresolved placeholder is an
// error, never literal text or an empty substitution, so a malformed message
// is never sent.
type RenderError struct {
	Kind  RenderErrorKind
	Field string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error (%s): field %q", e.Kind, e.Field)
}

type DispatchErrorKind string

const (
	DispatchRejected    DispatchErrorKind = "rejected"
	DispatchTimeout     DispatchErrorKind = "timeout"
	DispatchUnavailable DispatchErrorKind = "unavailable"
)

// DispatchError is isolated per row: it is recorded in the execution log and
// does not abort the run.
type DispatchError struct {
	Kind    DispatchErrorKind
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error (%s) on channel %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
