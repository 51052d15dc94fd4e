package router

import (
	"encoding/json"
	"reflect"
	"strings"
)

// matchAll evaluates a rule's conditions against the document. Evaluation
// never errors: a malformed condition or an unresolvable path is false.
func matchAll(doc map[string]any, conditions map[string]json.RawMessage) bool {
	for path, raw := range conditions {
		if !matchCondition(doc, path, raw) {
			return false
		}
	}
	return true
}

func matchCondition(doc map[string]any, path string, raw json.RawMessage) bool {
	var want any
	if err := json.Unmarshal(raw, &want); err != nil {
		return false
	}
	val, found := lookupPath(doc, path)

	if ops, ok := operatorSet(want); ok {
		return matchOperators(val, found, ops)
	}
	return found && equalValues(val, want)
}

// lookupPath walks a dot-separated path through nested JSON objects.
// A missing key or a non-object at any level resolves to not-found.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// operatorSet reports whether the condition value is an operator object.
// Only objects whose keys all start with '$' are operators; anything else
// is compared for equality.
func operatorSet(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	for k := range obj {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return obj, true
}

func matchOperators(val any, found bool, ops map[string]any) bool {
	for op, want := range ops {
		if !matchOperator(val, found, op, want) {
			return false
		}
	}
	return true
}

func matchOperator(val any, found bool, op string, want any) bool {
	if op == "$exists" {
		wantExists, ok := want.(bool)
		return ok && found == wantExists
	}
	// Every other operator needs a resolved value.
	if !found {
		return false
	}
	switch op {
	case "$ne":
		return !equalValues(val, want)
	case "$in":
		list, ok := want.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if equalValues(val, item) {
				return true
			}
		}
		return false
	case "$gt", "$gte", "$lt", "$lte":
		a, aok := val.(float64)
		b, bok := want.(float64)
		if !aok || !bok {
			return false
		}
		switch op {
		case "$gt":
			return a > b
		case "$gte":
			return a >= b
		case "$lt":
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}

// equalValues compares two decoded JSON values structurally.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
