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
	"time"

	"github.com/canvasflow-ai/canvasflow/event"
	"github.com/canvasflow-ai/canvasflow/log"
)

// Resume continues a suspended run: the decision payload becomes the
// suspended node's output and the scheduler re-enters the loop from that
// node's successors, without re-running any node that already recorded
// success.
//
// Resume is idempotent: resuming a run that is not suspended is a no-op
// that returns the current run state.
func (e *Executor) Resume(ctx context.Context, g *Graph, runID string, decision any) (*Run, error) {
	run, err := e.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusSuspended {
		log.Infof("resume of run %s ignored: status %s", runID, run.Status)
		return run, nil
	}
	nodeID := run.SuspendedNodeID
	node, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("suspended node %s not in graph %s", nodeID, g.ID())
	}
	res, ok := run.NodeResults[nodeID]
	if !ok || res.Status != NodeStatusSuspended {
		return nil, fmt.Errorf("run %s has no suspended result for node %s", runID, nodeID)
	}

	rejected := false
	if node.Type == NodeTypeApproval {
		var cfg ApprovalConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return nil, err
		}
		rejected = cfg.FailOnReject && decisionRejected(decision)
	}

	now := time.Now().UTC()
	res.FinishedAt = &now
	res.Output = decision
	run.SuspendedNodeID = ""

	if rejected {
		res.Status = NodeStatusFailed
		res.Error = "approval rejected"
		e.broadcaster.Publish(event.New(event.TypeStepError, run.ID, nodeID,
			event.WithNodeType(string(node.Type)),
			event.WithError(res.Error)))
		return e.failRun(ctx, run, fmt.Errorf("node %s: approval rejected", nodeID))
	}

	res.Status = NodeStatusSuccess
	e.broadcaster.Publish(event.New(event.TypeStepSuccess, run.ID, nodeID,
		event.WithNodeType(string(node.Type)),
		event.WithDuration(now.Sub(res.StartedAt)),
		event.WithOutputPreview(decision)))
	log.Infof("run %s resumed at node %s", runID, nodeID)
	return e.drive(ctx, g, run)
}

// decisionRejected reports whether an approval decision payload is a
// rejection: an object with "approved" set to false.
func decisionRejected(decision any) bool {
	m, ok := decision.(map[string]any)
	if !ok {
		return false
	}
	approved, ok := m["approved"].(bool)
	return ok && !approved
}
