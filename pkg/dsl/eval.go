// Package dsl implements the condition expression language used by monitor
// match_conditions: a small AND/OR boolean grammar over typed field
// comparisons, evaluated against a per-tick Environment.
package dsl

import "fmt"

// Evaluate parses and runs expr against env in one call. Callers that
// evaluate the same expression repeatedly should Parse once and call Run
// for each Environment instead.
func Evaluate(expr string, env Environment) (bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return Run(e, env)
}

// Run evaluates a parsed Expr against env. A resolve or comparator error
// anywhere in the tree aborts the whole evaluation: the caller treats this
// as "the condition did not match" and logs the error, never as fatal.
func Run(e Expr, env Environment) (bool, error) {
	switch t := e.(type) {
	case OrExpr:
		for _, term := range t.Terms {
			ok, err := Run(term, env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case AndExpr:
		for _, term := range t.Terms {
			ok, err := Run(term, env)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Comparison:
		left, err := resolve(env, t.Path)
		if err != nil {
			return false, err
		}
		return compare(left, t.Op, t.RHS)
	default:
		return false, fmt.Errorf("%w: unknown expression node %T", ErrParseError, e)
	}
}
