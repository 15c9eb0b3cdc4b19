package hql

import "fmt"

// ParseError code constants, one per structural failure class.
const (
	ErrMalformedStage      = "MALFORMED_STAGE"
	ErrArityMismatch       = "ARITY_MISMATCH"
	ErrInvalidNumber       = "INVALID_NUMBER"
	ErrUnterminatedLiteral = "UNTERMINATED_LITERAL"
	ErrUnknownOperator     = "UNKNOWN_OPERATOR"
)

// EvalError code constants.
const (
	ErrTypeMismatch = "TYPE_MISMATCH"
)

// ParseError represents a structural error found while compiling a
// pipeline. Compilation is all-or-nothing: the first error aborts it.
type ParseError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Pos      Pos    `json:"pos"`
	Got      string `json:"got,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	if e.Got != "" && e.Expected != "" {
		return fmt.Sprintf("parse error at %d:%d: %s (got %q, expected %s)",
			e.Pos.Line, e.Pos.Column, e.Message, e.Got, e.Expected)
	}
	if e.Got != "" {
		return fmt.Sprintf("parse error at %d:%d: %s (got %q)",
			e.Pos.Line, e.Pos.Column, e.Message, e.Got)
	}
	return fmt.Sprintf("parse error at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// EvalError represents a semantic error raised while running a compiled
// pipeline, e.g. an extract stage receiving a value that is already text.
// An out-of-range @child index is not an error; it contributes nothing.
type EvalError struct {
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
	Pos      Pos    `json:"pos"`
}

// Error implements the error interface for EvalError.
func (e *EvalError) Error() string {
	return fmt.Sprintf("eval error at %d:%d: %s expects %s, got %s",
		e.Pos.Line, e.Pos.Column, e.Stage, e.Expected, e.Got)
}
