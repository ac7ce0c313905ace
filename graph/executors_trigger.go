//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "context"

// triggerExecutor handles TRIGGER_MANUAL and TRIGGER_WEBHOOK nodes.
// Identity: the node's output is the original trigger input.
type triggerExecutor struct{}

func (e *triggerExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	return &Outcome{Output: c.TriggerInput()}, nil
}
