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
)

// Suspension is the control-flow signal raised by human-in-the-loop node
// executors to pause a run. It is not a failure: the scheduler intercepts
// it, persists the run as SUSPENDED, and exits the loop until an external
// resume supplies the reviewer's decision.
type Suspension struct {
	// NodeID is the node that suspended, filled in by the scheduler.
	NodeID string
	// Prompt is the value presented to the human reviewer.
	Prompt any
}

// Error implements the error interface so executors can return the signal
// through their ordinary error path.
func (s *Suspension) Error() string {
	return fmt.Sprintf("run suspended at node %s", s.NodeID)
}

// NewSuspension creates a suspension signal carrying the reviewer prompt.
func NewSuspension(prompt any) *Suspension {
	return &Suspension{Prompt: prompt}
}

// AsSuspension extracts a suspension signal from an executor error.
func AsSuspension(err error) (*Suspension, bool) {
	var s *Suspension
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}
