// Package engineerr provides the engine's unified error shape, grounded on
// infrastructure/errors.ServiceError in the teacher repository: a closed
// set of error codes plus structured details, rather than ad-hoc
// fmt.Errorf strings, so the run controller and CLI can branch on Code
// without string matching.
package engineerr

import "fmt"

// Code is the closed set of engine error kinds (spec.md §7).
type Code string

const (
	CodeSpecMissingRef        Code = "SPEC_MISSING_REF"
	CodeSpecUnknownGenerator  Code = "SPEC_UNKNOWN_GENERATOR"
	CodeSpecUndefinedStateAttr Code = "SPEC_UNDEFINED_STATE_ATTR"
	CodeSpecCircularRef       Code = "SPEC_CIRCULAR_REF"
	CodeFeasibilityLapse      Code = "FEASIBILITY_LAPSE"
	CodeGeneratorFault        Code = "GENERATOR_FAULT"
	CodeSinkFault             Code = "SINK_FAULT"
	CodeStarved               Code = "STARVED"
)

// EngineError is the engine's structured error type.
type EngineError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a diagnostic key/value and returns the receiver for
// chaining, matching ServiceError.WithDetails's fluent style.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// New constructs an EngineError with the given code and message.
func New(code Code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Wrap constructs an EngineError wrapping an underlying cause.
func Wrap(code Code, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// GeneratorFault builds a CodeGeneratorFault error with the (event_type,
// field path, cause) context spec.md §7 requires generator faults to log.
func GeneratorFault(eventType, fieldPath string, cause error) *EngineError {
	return Wrap(CodeGeneratorFault, "generator fault", cause).
		WithDetail("event_type", eventType).
		WithDetail("field_path", fieldPath)
}
