package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/campuscloset/internal/ir"
)

// MarshalObject converts an IRObject to canonical JSON TEXT for storage.
// nil becomes "{}".
func MarshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// UnmarshalObject parses JSON TEXT written by MarshalObject. Integers keep
// full int64 precision.
func UnmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	obj, err := ir.ObjectFromJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

// MarshalStrings stores a string list as a JSON array. nil becomes "[]".
func MarshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// UnmarshalStrings parses a JSON string array.
func UnmarshalStrings(data string) ([]string, error) {
	list := []string{}
	if data == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return list, nil
}
