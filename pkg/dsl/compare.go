package dsl

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/openzeppelin-fork/monitor-go/pkg/normalize"
)

func compare(left Param, op Operator, rhs Literal) (bool, error) {
	switch left.Kind {
	case KindNumeric:
		return compareNumeric(left, op, rhs)
	case KindBool:
		return compareBool(left, op, rhs)
	case KindAddress:
		return compareAddress(left, op, rhs)
	case KindString, KindSymbol, KindBytes:
		return compareCaseInsensitiveString(left, op, rhs)
	case KindVec:
		return compareVec(left, op, rhs)
	case KindMap:
		return compareMap(left, op, rhs)
	default:
		return false, fmt.Errorf("%w: unknown parameter kind", ErrTypeMismatch)
	}
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func compareNumeric(left Param, op Operator, rhs Literal) (bool, error) {
	lhsStr, ok := asString(left.Value)
	if !ok {
		return false, fmt.Errorf("%w: numeric parameter must be a string", ErrTypeMismatch)
	}
	if rhs.Kind != LiteralNumber && rhs.Kind != LiteralBareword {
		return false, fmt.Errorf("%w: expected a numeric literal", ErrTypeMismatch)
	}
	l, ok := new(big.Float).SetPrec(256).SetString(lhsStr)
	if !ok {
		return false, fmt.Errorf("%w: cannot parse %q as a number", ErrTypeMismatch, lhsStr)
	}
	r, ok := new(big.Float).SetPrec(256).SetString(rhs.Text)
	if !ok {
		return false, fmt.Errorf("%w: cannot parse %q as a number", ErrTypeMismatch, rhs.Text)
	}
	cmp := l.Cmp(r)
	switch op {
	case OpEq:
		return cmp == 0, nil
	case OpNeq:
		return cmp != 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("%w: %q is not valid for numeric values", ErrUnsupportedOperator, op)
	}
}

func compareBool(left Param, op Operator, rhs Literal) (bool, error) {
	if op != OpEq && op != OpNeq {
		return false, fmt.Errorf("%w: %q is not valid for bool values", ErrUnsupportedOperator, op)
	}
	var lhs bool
	switch v := left.Value.(type) {
	case bool:
		lhs = v
	case string:
		// Parsed from a string field: case-sensitive exact match required.
		switch v {
		case "true":
			lhs = true
		case "false":
			lhs = false
		default:
			return false, fmt.Errorf("%w: %q is not a boolean literal", ErrTypeMismatch, v)
		}
	default:
		return false, fmt.Errorf("%w: bool parameter has unsupported representation", ErrTypeMismatch)
	}

	if rhs.Kind != LiteralBool {
		return false, fmt.Errorf("%w: expected a boolean literal", ErrTypeMismatch)
	}
	rhsBool := strings.EqualFold(rhs.Text, "TRUE")

	if op == OpEq {
		return lhs == rhsBool, nil
	}
	return lhs != rhsBool, nil
}

func compareAddress(left Param, op Operator, rhs Literal) (bool, error) {
	lhsStr, ok := asString(left.Value)
	if !ok {
		return false, fmt.Errorf("%w: address parameter must be a string", ErrTypeMismatch)
	}
	switch op {
	case OpEq:
		return normalize.SameAddress(lhsStr, rhs.Text), nil
	case OpNeq:
		return !normalize.SameAddress(lhsStr, rhs.Text), nil
	case OpContains:
		return strings.Contains(normalize.Address(lhsStr), normalize.Address(rhs.Text)), nil
	case OpStartsWith:
		return strings.HasPrefix(normalize.Address(lhsStr), normalize.Address(rhs.Text)), nil
	case OpEndsWith:
		return strings.HasSuffix(normalize.Address(lhsStr), normalize.Address(rhs.Text)), nil
	default:
		return false, fmt.Errorf("%w: %q is not valid for address values", ErrUnsupportedOperator, op)
	}
}

func compareCaseInsensitiveString(left Param, op Operator, rhs Literal) (bool, error) {
	lhsStr, ok := asString(left.Value)
	if !ok {
		return false, fmt.Errorf("%w: string-like parameter must be a string", ErrTypeMismatch)
	}
	l := strings.ToLower(lhsStr)
	r := strings.ToLower(rhs.Text)
	switch op {
	case OpEq:
		return l == r, nil
	case OpNeq:
		return l != r, nil
	case OpContains:
		return strings.Contains(l, r), nil
	case OpStartsWith:
		return strings.HasPrefix(l, r), nil
	case OpEndsWith:
		return strings.HasSuffix(l, r), nil
	default:
		return false, fmt.Errorf("%w: %q is not valid for string values", ErrUnsupportedOperator, op)
	}
}

// decodeVec turns a Vec Param's Value into a []interface{}, accepting either
// an already-decoded slice, a JSON array string, or a CSV string.
func decodeVec(v interface{}) (elems []interface{}, asJSON bool, raw string) {
	switch t := v.(type) {
	case []interface{}:
		return t, true, ""
	case string:
		var arr []interface{}
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return arr, true, t
		}
		parts := strings.Split(t, ",")
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, false, t
	default:
		return nil, false, ""
	}
}

func vecElementContains(elem interface{}, needle string) bool {
	switch e := elem.(type) {
	case string:
		return strings.Contains(strings.ToLower(e), strings.ToLower(needle))
	case map[string]interface{}:
		if v, ok := e["value"]; ok {
			return vecElementContains(v, needle)
		}
		return false
	case []interface{}:
		for _, inner := range e {
			if vecElementContains(inner, needle) {
				return true
			}
		}
		return false
	case float64:
		return strings.Contains(strconv.FormatFloat(e, 'f', -1, 64), needle)
	case bool:
		return strconv.FormatBool(e) == strings.ToLower(needle)
	default:
		return false
	}
}

func compareVec(left Param, op Operator, rhs Literal) (bool, error) {
	elems, _, raw := decodeVec(left.Value)
	switch op {
	case OpContains:
		for _, e := range elems {
			if vecElementContains(e, rhs.Text) {
				return true, nil
			}
		}
		return false, nil
	case OpEq, OpNeq:
		equal := vecEquals(left.Value, rhs.Text, raw)
		if op == OpEq {
			return equal, nil
		}
		return !equal, nil
	default:
		return false, fmt.Errorf("%w: %q is not valid for vec values", ErrUnsupportedOperator, op)
	}
}

func vecEquals(lhsValue interface{}, rhsText, lhsRaw string) bool {
	lhsElems, lhsIsJSON, _ := decodeVec(lhsValue)
	var rhsElems []interface{}
	rhsIsJSON := json.Unmarshal([]byte(rhsText), &rhsElems) == nil

	if lhsIsJSON && rhsIsJSON {
		if len(lhsElems) != len(rhsElems) {
			return false
		}
		for i := range lhsElems {
			if !jsonEqual(lhsElems[i], rhsElems[i]) {
				return false
			}
		}
		return true
	}

	// Fall back to raw-string comparison, case-insensitive and
	// whitespace-normalized around commas.
	normalizeCSV := func(s string) string {
		parts := strings.Split(s, ",")
		for i, p := range parts {
			parts[i] = strings.ToLower(strings.TrimSpace(p))
		}
		return strings.Join(parts, ",")
	}
	left := lhsRaw
	if left == "" {
		left = fmt.Sprintf("%v", lhsValue)
	}
	return normalizeCSV(left) == normalizeCSV(rhsText)
}

func compareMap(left Param, op Operator, rhs Literal) (bool, error) {
	switch op {
	case OpEq, OpNeq:
		lhsMap, lhsOK := decodeMap(left.Value)
		var rhsMap map[string]interface{}
		rhsOK := json.Unmarshal([]byte(rhs.Text), &rhsMap) == nil
		equal := lhsOK && rhsOK && jsonEqual(lhsMap, rhsMap)
		if op == OpEq {
			return equal, nil
		}
		return !equal, nil
	case OpContains:
		m, _ := decodeMap(left.Value)
		return mapContainsValue(m, rhs.Text), nil
	default:
		return false, fmt.Errorf("%w: %q is not valid for map values", ErrUnsupportedOperator, op)
	}
}

func decodeMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(t), &m); err == nil {
			return m, true
		}
	}
	return nil, false
}

func mapContainsValue(v interface{}, needle string) bool {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, val := range t {
			if mapContainsValue(val, needle) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, val := range t {
			if mapContainsValue(val, needle) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(strings.ToLower(t), strings.ToLower(needle))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64) == needle
	case bool:
		return strconv.FormatBool(t) == strings.ToLower(needle)
	default:
		return false
	}
}

// jsonEqual implements semantic JSON equality: key order and surrounding
// whitespace never matter.
func jsonEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		keys := make([]string, 0, len(av))
		for k := range av {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bval, ok := bv[k]
			if !ok || !jsonEqual(av[k], bval) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}
