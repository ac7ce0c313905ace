//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package chatflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow-ai/canvasflow/graph"
	"github.com/canvasflow-ai/canvasflow/model"
)

type scriptedModel struct {
	mu       sync.Mutex
	reply    string
	requests []*model.Request
}

func (m *scriptedModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{Content: m.reply, Done: true}
	close(ch)
	return ch, nil
}

func (m *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func newAdapter(t *testing.T, m model.Model) *Adapter {
	t.Helper()
	e, err := graph.NewExecutor(graph.WithRegistry(graph.NewDefaultRegistry(graph.WithModel(m))))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return New(e)
}

func chatGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("chat").
		AddNode("t", graph.NodeTypeTriggerManual, nil).
		AddNode("sw", graph.NodeTypeSwitch, map[string]any{
			"discriminant": `vars.trigger.message == "refund" ? "workflow" : "other"`,
			"cases":        []any{"workflow"},
		}).
		AddNode("out", graph.NodeTypeStreamOutput, map[string]any{
			"prompt": "Answer: {{.vars.trigger.message}}",
		}).
		AddHandleEdge("sw", "workflow", "out").
		AddEdge("t", "sw").
		Build()
	require.NoError(t, err)
	return g
}

func TestRunProducesStreamedReply(t *testing.T) {
	m := &scriptedModel{reply: "your refund is on its way"}
	a := newAdapter(t, m)

	reply, err := a.Run(context.Background(), chatGraph(t), "refund", nil)
	require.NoError(t, err)
	assert.False(t, reply.Fallback)
	assert.Equal(t, "your refund is on its way", reply.Response)
	assert.NotEmpty(t, reply.RunID)
}

func TestRunSignalsFallbackOnDeadEnd(t *testing.T) {
	m := &scriptedModel{reply: "unused"}
	a := newAdapter(t, m)

	// The switch routes to default, which has no edge: the run completes
	// without reaching the stream output node.
	reply, err := a.Run(context.Background(), chatGraph(t), "weather", nil)
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
	assert.Empty(t, reply.Response)
	assert.NotEmpty(t, reply.RunID)
	assert.Empty(t, m.requests)
}

func TestRunSignalsFallbackOnFailedRun(t *testing.T) {
	g, err := graph.NewBuilder("broken").
		AddNode("t", graph.NodeTypeTriggerManual, nil).
		AddNode("x", graph.NodeTypeTransform, map[string]any{"expression": `input.missing.deeper`}).
		AddEdge("t", "x").
		Build()
	require.NoError(t, err)

	a := newAdapter(t, &scriptedModel{})
	reply, err := a.Run(context.Background(), g, "hello", nil)
	require.NoError(t, err)
	assert.True(t, reply.Fallback)
}

func TestRunPassesPriorMemoryAsHistory(t *testing.T) {
	m := &scriptedModel{reply: "answer"}
	a := newAdapter(t, m)

	memory := []model.Message{
		model.NewUserMessage("what is your refund policy?"),
		model.NewAssistantMessage("30 days, no questions asked"),
	}
	reply, err := a.Run(context.Background(), chatGraph(t), "refund", memory)
	require.NoError(t, err)
	require.False(t, reply.Fallback)

	require.Len(t, m.requests, 1)
	msgs := m.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "what is your refund policy?", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Answer: refund", msgs[2].Content)
}
