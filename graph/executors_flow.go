//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"

	"github.com/canvasflow-ai/canvasflow/cel"
)

// switchExecutor handles SWITCH nodes. The node passes its input through
// unchanged; its effect is the selected route handle, which the scheduler
// uses to decide which outgoing edges fire. When no case matches, the
// implicit default handle is selected; a missing default edge is a
// graceful dead-end, not an error.
type switchExecutor struct{}

func (e *switchExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	cfg, err := switchConfig(n)
	if err != nil {
		return nil, err
	}
	value, err := cel.EvalString(cfg.Discriminant, c.UpstreamInput(n), c.Variables(), c.NodeOutputs())
	if err != nil {
		return nil, fmt.Errorf("evaluate discriminant: %w", err)
	}
	route := DefaultHandle
	for _, label := range cfg.Cases {
		if label == value {
			route = label
			break
		}
	}
	return &Outcome{
		Output: c.UpstreamInput(n),
		Routes: []string{route},
	}, nil
}

// parallelExecutor handles PARALLEL nodes: a pure fan-out marker that
// passes its input through unchanged. The scheduler fires every outgoing
// edge unconditionally.
type parallelExecutor struct{}

func (e *parallelExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	return &Outcome{Output: c.UpstreamInput(n)}, nil
}

// mergeExecutor handles MERGE nodes. Strategy "all" combines every
// recorded inbound output into one object keyed by source node id, with
// null slots for sources that failed non-fatally. Strategy "race" passes
// through the first arrived result.
type mergeExecutor struct{}

func (e *mergeExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	sources := c.Graph.MergeSources(n.ID)
	if mergeStrategy(n) == MergeStrategyRace {
		for _, src := range sources {
			if res, ok := c.Run.NodeResults[src]; ok && res.Done() {
				return &Outcome{Output: res.Output}, nil
			}
		}
		return nil, fmt.Errorf("merge node %s has no arrived inbound result", n.ID)
	}
	combined := make(map[string]any, len(sources))
	for _, src := range sources {
		res, ok := c.Run.NodeResults[src]
		if !ok || !res.Done() {
			return nil, fmt.Errorf("merge node %s missing inbound source %s", n.ID, src)
		}
		combined[src] = res.Output
	}
	return &Outcome{Output: combined}, nil
}
