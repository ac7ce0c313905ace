//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package chatflow adapts the execution engine to a chat surface: one
// chat turn plus prior memory becomes the trigger input, and a reached
// STREAM_OUTPUT node's text becomes the chat response. When no such node
// is reached the adapter signals fallback so the caller can answer
// through a non-workflow path instead.
package chatflow

import (
	"context"

	"github.com/canvasflow-ai/canvasflow/graph"
	"github.com/canvasflow-ai/canvasflow/log"
	"github.com/canvasflow-ai/canvasflow/model"
)

// Adapter runs chat turns through workflow graphs.
type Adapter struct {
	executor *graph.Executor
}

// New creates an adapter on top of the given scheduler.
func New(executor *graph.Executor) *Adapter {
	return &Adapter{executor: executor}
}

// Reply is the outcome of one chat turn.
type Reply struct {
	// Response is the chat-visible answer when Fallback is false.
	Response string
	// Fallback signals that the workflow did not produce a chat-visible
	// answer and the caller should use a non-workflow response path.
	Fallback bool
	// RunID identifies the underlying run for observation and resume.
	RunID string
}

// Run executes the graph against one chat turn. Run-level failures are
// converted into fallback rather than propagated, preserving continuity
// of the conversation even when the workflow path breaks.
func (a *Adapter) Run(ctx context.Context, g *graph.Graph, userTurn string,
	priorMemory []model.Message) (*Reply, error) {
	input := map[string]any{"message": userTurn}
	if len(priorMemory) > 0 {
		history := make([]any, 0, len(priorMemory))
		for _, m := range priorMemory {
			history = append(history, map[string]any{
				"role":    string(m.Role),
				"content": m.Content,
			})
		}
		input["history"] = history
	}

	run, err := a.executor.Execute(ctx, g, input)
	if err != nil {
		return nil, err
	}
	reply := &Reply{RunID: run.ID, Fallback: true}
	if run.Status != graph.RunStatusCompleted {
		log.Debugf("chatflow run %s ended with status %s, falling back", run.ID, run.Status)
		return reply, nil
	}
	if text, ok := streamedText(g, run); ok {
		reply.Response = text
		reply.Fallback = false
	}
	return reply, nil
}

// streamedText finds a successfully executed STREAM_OUTPUT node and
// returns its text.
func streamedText(g *graph.Graph, run *graph.Run) (string, bool) {
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		if n.Type != graph.NodeTypeStreamOutput {
			continue
		}
		res, ok := run.Result(id)
		if !ok || res.Status != graph.NodeStatusSuccess {
			continue
		}
		if out, ok := res.Output.(map[string]any); ok {
			if text, ok := out["text"].(string); ok {
				return text, true
			}
		}
	}
	return "", false
}
