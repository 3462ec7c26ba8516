package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
)

// Reference roots a template string may start with.
const (
	RootParams = "params"
	RootResult = "result"
)

// refPattern matches strings shaped like a dotted reference, e.g.
// "params.listingId" or "bound.x". Only params and result are resolved;
// other roots are rejected by Validate.
var refPattern = regexp.MustCompile(`^([a-z][A-Za-z0-9_]*)\.[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// Template returns a mapper that builds effect params from args.
//
// A string "params.<path>" or "result.<path>" is replaced by the value at
// that dotted path of the trigger's params or result. Every other string,
// int, bool or null is copied as is. Structs and lists map element-wise.
// A path that does not resolve fails the mapping.
func Template(args ir.IRObject) engine.Mapper {
	return func(params, result ir.IRObject) (ir.IRObject, error) {
		out, err := expand(args, params, result)
		if err != nil {
			return nil, err
		}
		return out.(ir.IRObject), nil
	}
}

func expand(v ir.IRValue, params, result ir.IRObject) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRString:
		root, path, ok := reference(string(val))
		if !ok {
			return val, nil
		}
		src := params
		if root == RootResult {
			src = result
		}
		got, found := src.Lookup(path)
		if !found {
			return nil, fmt.Errorf("%s not found", val)
		}
		return cloneValue(got), nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			mapped, err := expand(elem, params, result)
			if err != nil {
				return nil, err
			}
			out[k] = mapped
		}
		return out, nil
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			mapped, err := expand(elem, params, result)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	default:
		return v, nil
	}
}

// reference splits a params or result reference into root and path.
func reference(s string) (root, path string, ok bool) {
	root, path, found := strings.Cut(s, ".")
	if !found || path == "" || (root != RootParams && root != RootResult) {
		return "", "", false
	}
	return root, path, true
}

func cloneValue(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRObject:
		return val.Clone()
	case ir.IRArray:
		wrapped := ir.IRObject{"v": val}.Clone()
		return wrapped["v"]
	default:
		return v
	}
}

// References lists every reference string in a template, in sorted key
// order, including those with unknown roots.
func References(args ir.IRObject) []string {
	var out []string
	var walk func(v ir.IRValue)
	walk = func(v ir.IRValue) {
		switch val := v.(type) {
		case ir.IRString:
			if refPattern.MatchString(string(val)) {
				out = append(out, string(val))
			}
		case ir.IRObject:
			for _, k := range val.SortedKeys() {
				walk(val[k])
			}
		case ir.IRArray:
			for _, elem := range val {
				walk(elem)
			}
		}
	}
	walk(args)
	return out
}
