//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package cel evaluates CEL expressions against run data. It backs the
// transform and code node bodies and the switch discriminant.
package cel

import (
	"fmt"
	"reflect"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

var defaultEnv *celgo.Env

func init() {
	// Create a CEL environment with dynamic variables:
	//   - input: the aggregated upstream output of the current node.
	//   - vars:  declared workflow variables plus the trigger input.
	//   - nodes: per-node outputs keyed by node id, allowing expressions
	//            such as nodes["classifier-1"].category.
	env, err := celgo.NewEnv(
		celgo.Variable("input", celgo.DynType),
		celgo.Variable("vars", celgo.DynType),
		celgo.Variable("nodes", celgo.DynType),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	defaultEnv = env
}

// Eval evaluates a CEL expression and returns the resulting Go value. It
// supports primitive types, maps, lists, and other JSON-like structures.
func Eval(expr string, input, vars, nodes any) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("cel: expression is empty")
	}

	ast, issues := defaultEnv.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel parse error: %w", issues.Err())
	}

	ast, issues = defaultEnv.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel type-check error: %w", issues.Err())
	}

	prg, err := defaultEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program build error: %w", err)
	}

	out, _, err := prg.Eval(map[string]any{
		"input": input,
		"vars":  vars,
		"nodes": nodes,
	})
	if err != nil {
		return nil, fmt.Errorf("cel eval error: %w", err)
	}

	return normalizeCELValue(out), nil
}

// EvalString evaluates a CEL expression expected to produce a string.
// Non-string scalar results are rendered with fmt.Sprint so that switch
// discriminants may return numbers or booleans as case labels.
func EvalString(expr string, input, vars, nodes any) (string, error) {
	val, err := Eval(expr, input, vars, nodes)
	if err != nil {
		return "", err
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	switch val.(type) {
	case map[string]any, []any, nil:
		return "", fmt.Errorf("cel: expression %q did not evaluate to a scalar (got %T)", expr, val)
	}
	return fmt.Sprint(val), nil
}

// normalizeCELValue converts CEL evaluation results into JSON-friendly Go
// values. It recursively:
//   - unwraps ref.Val into underlying Go values
//   - converts map keys to strings
//   - normalizes nested maps/slices.
func normalizeCELValue(v any) any {
	// Unwrap CEL values.
	if rv, ok := v.(ref.Val); ok {
		return normalizeCELValue(rv.Value())
	}

	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().Interface()
			val := iter.Value().Interface()
			keyStr := fmt.Sprint(normalizeCELValue(k))
			out[keyStr] = normalizeCELValue(val)
		}
		return out
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = normalizeCELValue(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}
