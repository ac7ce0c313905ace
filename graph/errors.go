//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRunNotFound is returned when a run id is unknown to the store.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when creating a run whose id already exists.
	ErrRunExists = errors.New("run already exists")
	// ErrRevConflict is returned when a checkpoint loses a revision race.
	ErrRevConflict = errors.New("run revision conflict")
	// ErrRunCancelled marks a run failed through external cancellation.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrNoExecutor is returned when no executor is registered for a node type.
	ErrNoExecutor = errors.New("no executor registered for node type")
)

// ValidationError reports why a graph definition was rejected.
// It is always fatal and raised before any run starts.
type ValidationError struct {
	// Issues lists every validation problem found.
	Issues []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s", strings.Join(e.Issues, "; "))
}

// ExecutionError reports a node executor failure. It is fatal to the run
// unless the node is configured to continue on failure.
type ExecutionError struct {
	// NodeID is the node that failed.
	NodeID string
	// Err is the underlying failure.
	Err error
	// Timeout marks failures caused by the per-node-type deadline.
	Timeout bool
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("node %s timed out: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ExecutionError) Unwrap() error { return e.Err }
