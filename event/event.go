//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package event provides the lifecycle event system for run observation.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	// TypeStepStart is emitted when a node begins executing.
	TypeStepStart Type = "step:start"
	// TypeStepSuccess is emitted when a node finishes successfully.
	TypeStepSuccess Type = "step:success"
	// TypeStepError is emitted when a node fails.
	TypeStepError Type = "step:error"
	// TypeStepSuspend is emitted when a node suspends the run.
	TypeStepSuspend Type = "step:suspend"
	// TypeRunComplete is emitted once when a run reaches a terminal state.
	TypeRunComplete Type = "run:complete"
)

// Event represents a single lifecycle event keyed by run id.
type Event struct {
	// ID is the unique identifier of the event.
	ID string `json:"id"`
	// Type is the event type.
	Type Type `json:"type"`
	// RunID is the run this event belongs to.
	RunID string `json:"runId"`
	// NodeID is the node the event refers to, empty for run-level events.
	NodeID string `json:"nodeId,omitempty"`
	// NodeType is the type of the node the event refers to.
	NodeType string `json:"nodeType,omitempty"`
	// Status carries the terminal run status for run:complete events.
	Status string `json:"status,omitempty"`
	// DurationMs is the wall-clock duration of the step or run.
	DurationMs int64 `json:"durationMs,omitempty"`
	// OutputPreview is a truncated rendering of the node output.
	OutputPreview string `json:"outputPreview,omitempty"`
	// Prompt carries the reviewer prompt for step:suspend events.
	Prompt any `json:"prompt,omitempty"`
	// Error is the error message for step:error and failed run:complete.
	Error string `json:"error,omitempty"`
	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// Option configures a new Event.
type Option func(*Event)

// WithNodeType sets the node type on the event.
func WithNodeType(nodeType string) Option {
	return func(e *Event) { e.NodeType = nodeType }
}

// WithDuration sets the duration on the event.
func WithDuration(d time.Duration) Option {
	return func(e *Event) { e.DurationMs = d.Milliseconds() }
}

// WithOutputPreview sets a truncated output preview on the event.
func WithOutputPreview(output any) Option {
	return func(e *Event) { e.OutputPreview = Preview(output, previewLimit) }
}

// WithPrompt sets the suspension prompt on the event.
func WithPrompt(prompt any) Option {
	return func(e *Event) { e.Prompt = prompt }
}

// WithError sets the error message on the event.
func WithError(msg string) Option {
	return func(e *Event) { e.Error = msg }
}

// WithStatus sets the terminal run status on the event.
func WithStatus(status string) Option {
	return func(e *Event) { e.Status = status }
}

// New creates a new Event with a generated ID and timestamp.
func New(typ Type, runID, nodeID string, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// previewLimit bounds the size of output previews carried on events.
const previewLimit = 256

// Preview renders a value as JSON truncated to max bytes.
// Values that cannot be marshaled render as an empty string.
func Preview(v any, max int) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > max {
		return s[:max]
	}
	return s
}
