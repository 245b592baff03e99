package dsl

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// resolve walks path against env, returning the terminal Param. The first
// segment must name an environment entry; remaining segments navigate
// through nested JSON (a.b.c objects, a[i] arrays).
func resolve(env Environment, path []string) (Param, error) {
	if len(path) == 0 {
		return Param{}, fmt.Errorf("%w: empty path", ErrFieldNotFound)
	}
	root, ok := env[path[0]]
	if !ok {
		return Param{}, fmt.Errorf("%w: %q is not defined", ErrFieldNotFound, path[0])
	}
	if len(path) == 1 {
		return root, nil
	}

	cur, err := asNavigable(root)
	if err != nil {
		return Param{}, err
	}
	for _, seg := range path[1:] {
		next, err := step(cur, seg)
		if err != nil {
			return Param{}, err
		}
		cur = next
	}
	return toParam(cur), nil
}

// asNavigable turns a Param's Value into something step() can index: a
// map[string]interface{} or []interface{}, parsing a JSON/CSV string first
// if necessary.
func asNavigable(p Param) (interface{}, error) {
	switch v := p.Value.(type) {
	case map[string]interface{}, []interface{}:
		return v, nil
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return decoded, nil
		}
		return nil, fmt.Errorf("%w: value is not a navigable structure", ErrFieldNotFound)
	default:
		return nil, fmt.Errorf("%w: value is not a navigable structure", ErrFieldNotFound)
	}
}

func step(cur interface{}, seg string) (interface{}, error) {
	switch c := cur.(type) {
	case map[string]interface{}:
		v, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("%w: key %q not found", ErrFieldNotFound, seg)
		}
		return v, nil
	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid array index", ErrFieldNotFound, seg)
		}
		if idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("%w: index %d out of bounds", ErrFieldNotFound, idx)
		}
		return c[idx], nil
	default:
		return nil, fmt.Errorf("%w: cannot index into a scalar value", ErrFieldNotFound)
	}
}

// toParam infers a Kind for a navigated-to JSON value so comparators keep
// working after a path walk.
func toParam(v interface{}) Param {
	switch t := v.(type) {
	case bool:
		return Param{Kind: KindBool, Value: t}
	case string:
		return Param{Kind: KindString, Value: t}
	case float64:
		return Param{Kind: KindNumeric, Value: strconv.FormatFloat(t, 'f', -1, 64)}
	case map[string]interface{}:
		return Param{Kind: KindMap, Value: t}
	case []interface{}:
		return Param{Kind: KindVec, Value: t}
	case nil:
		return Param{Kind: KindString, Value: ""}
	default:
		return Param{Kind: KindString, Value: fmt.Sprintf("%v", t)}
	}
}
