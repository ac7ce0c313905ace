//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	// RunStatusPending marks a created run that has not started.
	RunStatusPending RunStatus = "PENDING"
	// RunStatusRunning marks a run being driven by the scheduler.
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusSuspended marks a run paused awaiting external input.
	RunStatusSuspended RunStatus = "SUSPENDED"
	// RunStatusCompleted marks a successfully finished run.
	RunStatusCompleted RunStatus = "COMPLETED"
	// RunStatusFailed marks a terminally failed run.
	RunStatusFailed RunStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal runs are
// immutable and cannot be resumed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// NodeStatus is the lifecycle status of a single node within a run.
type NodeStatus string

const (
	// NodeStatusPending marks a node that has not started.
	NodeStatusPending NodeStatus = "pending"
	// NodeStatusRunning marks a node currently executing.
	NodeStatusRunning NodeStatus = "running"
	// NodeStatusSuccess marks a node that completed successfully.
	NodeStatusSuccess NodeStatus = "success"
	// NodeStatusFailed marks a node that failed.
	NodeStatusFailed NodeStatus = "failed"
	// NodeStatusSuspended marks the node a run is suspended on.
	NodeStatusSuspended NodeStatus = "suspended"
)

// NodeResult records the outcome of one node execution within a run.
type NodeResult struct {
	// Status is the node lifecycle status.
	Status NodeStatus `json:"status"`
	// Output is the node's recorded output.
	Output any `json:"output,omitempty"`
	// Error is the failure message for failed nodes.
	Error string `json:"error,omitempty"`
	// Routes persists the outgoing handles a switch node selected, so
	// edge firing survives a process restart.
	Routes []string `json:"routes,omitempty"`
	// NonFatal marks a failure the run proceeded past with null output.
	NonFatal bool `json:"nonFatal,omitempty"`
	// StartedAt is when the node began executing.
	StartedAt time.Time `json:"startedAt"`
	// FinishedAt is when the node reached a final status.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Done reports whether the node reached a final status for dependency
// purposes: success, or a non-fatal failure downstream proceeds past.
func (r *NodeResult) Done() bool {
	return r.Status == NodeStatusSuccess || (r.Status == NodeStatusFailed && r.NonFatal)
}

// Run is the durable record of a single graph execution. It is created
// when a trigger fires, mutated only by the scheduler, and immutable once
// its status is terminal.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`
	// GraphID identifies the graph this run executes.
	GraphID string `json:"graphId"`
	// Status is the run lifecycle status.
	Status RunStatus `json:"status"`
	// Frontier is the set of node ids eligible to execute next.
	Frontier []string `json:"frontier,omitempty"`
	// NodeResults maps node id to its recorded result.
	NodeResults map[string]*NodeResult `json:"nodeResults"`
	// SuspendedNodeID is the node a SUSPENDED run is waiting on.
	SuspendedNodeID string `json:"suspendedNodeId,omitempty"`
	// Input is the original trigger input.
	Input map[string]any `json:"input,omitempty"`
	// Variables are the workflow variables for this run.
	Variables map[string]any `json:"variables,omitempty"`
	// Error is the run-level failure message for FAILED runs.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"createdAt"`
	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Rev is the store revision used for optimistic concurrency.
	Rev int64 `json:"rev"`
}

// NewRun creates a pending run for the given graph and trigger input.
func NewRun(graphID string, input map[string]any) *Run {
	return &Run{
		ID:          uuid.New().String(),
		GraphID:     graphID,
		Status:      RunStatusPending,
		NodeResults: make(map[string]*NodeResult),
		Input:       input,
		CreatedAt:   time.Now().UTC(),
	}
}

// Result returns the recorded result for a node, if any.
func (r *Run) Result(nodeID string) (*NodeResult, bool) {
	res, ok := r.NodeResults[nodeID]
	return res, ok
}

// Clone deep-copies the run through a JSON round trip, normalizing output
// values the same way every durable store does.
func (r *Run) Clone() (*Run, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	var clone Run
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", r.ID, err)
	}
	if clone.NodeResults == nil {
		clone.NodeResults = make(map[string]*NodeResult)
	}
	return &clone, nil
}

// ExecContext is the ephemeral per-run view passed to node executors.
// Executors read prior outputs, the trigger input and workflow variables;
// each contributes exactly one new entry (its own output) on success and
// never mutates another node's entry.
type ExecContext struct {
	// Graph is the graph being executed.
	Graph *Graph
	// Run is the run record, read-only for executors.
	Run *Run
}

// TriggerInput returns the original trigger input.
func (c *ExecContext) TriggerInput() map[string]any { return c.Run.Input }

// Variables returns the workflow variables merged with the trigger input
// under the "trigger" key, for template and expression access.
func (c *ExecContext) Variables() map[string]any {
	vars := make(map[string]any, len(c.Run.Variables)+1)
	for k, v := range c.Run.Variables {
		vars[k] = v
	}
	vars["trigger"] = c.Run.Input
	return vars
}

// Output returns the recorded output of an already-executed node.
func (c *ExecContext) Output(nodeID string) (any, bool) {
	res, ok := c.Run.NodeResults[nodeID]
	if !ok || !res.Done() {
		return nil, false
	}
	return res.Output, true
}

// NodeOutputs returns every completed node's output keyed by node id.
func (c *ExecContext) NodeOutputs() map[string]any {
	out := make(map[string]any)
	for id, res := range c.Run.NodeResults {
		if res.Done() {
			out[id] = res.Output
		}
	}
	return out
}

// UpstreamInput aggregates the output of the node's completed upstream
// sources: the trigger input for source-less nodes, the single upstream
// output when there is exactly one, and a map keyed by source node id
// otherwise. Sources that failed non-fatally contribute null.
func (c *ExecContext) UpstreamInput(n *Node) any {
	edges := c.Graph.Inbound(n.ID)
	if len(edges) == 0 {
		return c.Run.Input
	}
	outputs := make(map[string]any)
	for _, e := range edges {
		if res, ok := c.Run.NodeResults[e.Source]; ok && res.Done() {
			outputs[e.Source] = res.Output
		}
	}
	if len(outputs) == 1 {
		for _, v := range outputs {
			return v
		}
	}
	return outputs
}
