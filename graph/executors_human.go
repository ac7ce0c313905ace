//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "context"

// approvalExecutor handles APPROVAL nodes: present a prompt to a human
// reviewer and suspend the run. On resume, the reviewer's decision
// payload becomes the node output.
type approvalExecutor struct{}

func (e *approvalExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	var cfg ApprovalConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	prompt := cfg.Prompt
	if prompt != "" {
		rendered, err := renderTemplate(prompt, c, n)
		if err != nil {
			return nil, err
		}
		prompt = rendered
	}
	return nil, NewSuspension(map[string]any{
		"prompt": prompt,
		"input":  c.UpstreamInput(n),
	})
}

// handoffExecutor handles HANDOFF nodes: suspend unconditionally to hand
// the run to a human operator. A dead-end for automated continuation
// unless explicitly resumed.
type handoffExecutor struct{}

func (e *handoffExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	var cfg HandoffConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	return nil, NewSuspension(map[string]any{
		"reason": cfg.Reason,
		"input":  c.UpstreamInput(n),
	})
}
