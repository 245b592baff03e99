package dsl

import "errors"

// Sentinel error kinds returned by Parse and Evaluate. Every error the
// evaluator produces is one of these, logged at the filter site and
// treated as "this condition did not match" — never propagated as a fatal
// failure.
var (
	ErrParseError          = errors.New("dsl: parse error")
	ErrTypeMismatch        = errors.New("dsl: type mismatch")
	ErrFieldNotFound       = errors.New("dsl: field not found")
	ErrUnsupportedOperator = errors.New("dsl: unsupported operator")
)
