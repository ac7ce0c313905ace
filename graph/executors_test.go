//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow-ai/canvasflow/knowledge"
	"github.com/canvasflow-ai/canvasflow/model"
)

// fakeModel is a scripted model collaborator for tests.
type fakeModel struct {
	mu       sync.Mutex
	reply    string
	err      string
	calls    int
	requests []*model.Request
}

func (m *fakeModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	ch := make(chan *model.Response, 1)
	if m.err != "" {
		ch <- &model.Response{Done: true, Error: &model.ResponseError{Message: m.err}}
	} else {
		ch <- &model.Response{Content: m.reply, Done: true}
	}
	close(ch)
	return ch, nil
}

func (m *fakeModel) Info() model.Info { return model.Info{Name: "fake"} }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeModel) lastRequest() *model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// fakeRetriever returns a fixed chunk set and records the last query.
type fakeRetriever struct {
	chunks []*knowledge.Chunk
	query  *knowledge.Query
}

func (r *fakeRetriever) Retrieve(ctx context.Context, q *knowledge.Query) (*knowledge.Result, error) {
	r.query = q
	return &knowledge.Result{Chunks: r.chunks}, nil
}

// execContext builds a one-node context around the given graph with prior
// results recorded on the run.
func execContext(t *testing.T, g *Graph, input map[string]any, results map[string]*NodeResult) *ExecContext {
	t.Helper()
	run := NewRun(g.ID(), input)
	if vars := g.Variables(); len(vars) > 0 {
		run.Variables = vars
	}
	for id, res := range results {
		run.NodeResults[id] = res
	}
	return &ExecContext{Graph: g, Run: run}
}

func successResult(output any) *NodeResult {
	now := time.Now().UTC()
	return &NodeResult{Status: NodeStatusSuccess, Output: output, StartedAt: now, FinishedAt: &now}
}

func nonFatalResult() *NodeResult {
	now := time.Now().UTC()
	return &NodeResult{Status: NodeStatusFailed, NonFatal: true, Error: "boom", StartedAt: now, FinishedAt: &now}
}

func mustGraph(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestTriggerExecutorPassesInputThrough(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").AddNode("t", NodeTypeTriggerManual, nil))
	c := execContext(t, g, map[string]any{"message": "hi"}, nil)
	n, _ := g.Node("t")

	out, err := (&triggerExecutor{}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "hi"}, out.Output)
}

func TestTransformExecutorEvaluatesExpression(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("x", NodeTypeTransform, map[string]any{
			"expression": `{"summary": input.text, "tone": vars.tone}`,
		}).
		AddEdge("t", "x").
		WithVariable("tone", "curt"))
	c := execContext(t, g, map[string]any{"message": "hi"}, map[string]*NodeResult{
		"t": successResult(map[string]any{"text": "hello world"}),
	})
	n, _ := g.Node("x")

	out, err := (&transformExecutor{}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "hello world", "tone": "curt"}, out.Output)
}

func TestTransformExecutorFailsOnEvalError(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("x", NodeTypeTransform, map[string]any{"expression": `input.missing.deeper`}).
		AddEdge("t", "x"))
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t": successResult(map[string]any{"text": "hello"}),
	})
	n, _ := g.Node("x")

	_, err := (&transformExecutor{}).Execute(context.Background(), n, c)
	require.Error(t, err)
}

func TestCodeExecutorSeesNodeOutputs(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("a", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("c", NodeTypeCode, map[string]any{"script": `nodes["a"].n + 1`}).
		AddEdge("t", "a").
		AddEdge("a", "c"))
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t": successResult(map[string]any{"n": 1}),
		"a": successResult(map[string]any{"n": 41}),
	})
	n, _ := g.Node("c")

	out, err := (&codeExecutor{}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	assert.EqualValues(t, 42, out.Output)
}

func TestOutputParserExecutor(t *testing.T) {
	newCtx := func(t *testing.T, strict bool, upstream any) (*Node, *ExecContext) {
		g := mustGraph(t, NewBuilder("g").
			AddNode("t", NodeTypeTriggerManual, nil).
			AddNode("p", NodeTypeOutputParser, map[string]any{"strict": strict}).
			AddEdge("t", "p"))
		c := execContext(t, g, nil, map[string]*NodeResult{"t": successResult(upstream)})
		n, _ := g.Node("p")
		return n, c
	}

	t.Run("parses fenced json", func(t *testing.T) {
		n, c := newCtx(t, true, map[string]any{
			"text": "Sure, here you go:\n```json\n{\"category\": \"billing\", \"score\": 0.9}\n```",
		})
		out, err := (&outputParserExecutor{}).Execute(context.Background(), n, c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"category": "billing", "score": 0.9}, out.Output)
	})

	t.Run("strict fails on prose", func(t *testing.T) {
		n, c := newCtx(t, true, map[string]any{"text": "no json here"})
		_, err := (&outputParserExecutor{}).Execute(context.Background(), n, c)
		require.Error(t, err)
	})

	t.Run("lenient falls back to text", func(t *testing.T) {
		n, c := newCtx(t, false, map[string]any{"text": "no json here"})
		out, err := (&outputParserExecutor{}).Execute(context.Background(), n, c)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"text": "no json here"}, out.Output)
	})
}

func TestSwitchExecutorRoutes(t *testing.T) {
	build := func(t *testing.T, upstream any) (*Node, *ExecContext) {
		g := mustGraph(t, NewBuilder("g").
			AddNode("t", NodeTypeTriggerManual, nil).
			AddNode("sw", NodeTypeSwitch, map[string]any{
				"discriminant": `input.category`,
				"cases":        []any{"billing", "tech"},
			}).
			AddEdge("t", "sw"))
		c := execContext(t, g, nil, map[string]*NodeResult{"t": successResult(upstream)})
		n, _ := g.Node("sw")
		return n, c
	}

	t.Run("matched case", func(t *testing.T) {
		upstream := map[string]any{"category": "tech"}
		n, c := build(t, upstream)
		out, err := (&switchExecutor{}).Execute(context.Background(), n, c)
		require.NoError(t, err)
		assert.Equal(t, []string{"tech"}, out.Routes)
		assert.Equal(t, upstream, out.Output)
	})

	t.Run("unmatched falls back to default", func(t *testing.T) {
		n, c := build(t, map[string]any{"category": "gardening"})
		out, err := (&switchExecutor{}).Execute(context.Background(), n, c)
		require.NoError(t, err)
		assert.Equal(t, []string{DefaultHandle}, out.Routes)
	})

	t.Run("non-scalar discriminant fails", func(t *testing.T) {
		n, c := build(t, map[string]any{"category": map[string]any{"x": 1}})
		_, err := (&switchExecutor{}).Execute(context.Background(), n, c)
		require.Error(t, err)
	})
}

func TestMergeExecutorAll(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("p", NodeTypeParallel, nil).
		AddNode("a", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("b", NodeTypeTransform, map[string]any{"expression": "input", "continueOnFail": true}).
		AddNode("m", NodeTypeMerge, nil).
		AddEdge("t", "p").
		AddEdge("p", "a").
		AddEdge("p", "b").
		AddEdge("a", "m").
		AddEdge("b", "m"))
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t": successResult(nil),
		"p": successResult(nil),
		"a": successResult("left"),
		"b": nonFatalResult(),
	})
	n, _ := g.Node("m")

	out, err := (&mergeExecutor{}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	// The failed-but-non-fatal branch contributes a null slot.
	assert.Equal(t, map[string]any{"a": "left", "b": nil}, out.Output)
}

func TestMergeExecutorAllMissingSource(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("a", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("m", NodeTypeMerge, nil).
		AddEdge("t", "a").
		AddEdge("a", "m"))
	c := execContext(t, g, nil, map[string]*NodeResult{"t": successResult(nil)})
	n, _ := g.Node("m")

	_, err := (&mergeExecutor{}).Execute(context.Background(), n, c)
	require.Error(t, err)
}

func TestMergeExecutorRace(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("a", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("b", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("m", NodeTypeMerge, map[string]any{"mergeStrategy": "race"}).
		AddEdge("t", "a").
		AddEdge("t", "b").
		AddEdge("a", "m").
		AddEdge("b", "m"))
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t": successResult(nil),
		"b": successResult("second branch"),
	})
	n, _ := g.Node("m")

	out, err := (&mergeExecutor{}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	assert.Equal(t, "second branch", out.Output)
}

func TestLLMExecutor(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("llm", NodeTypeLLM, map[string]any{
			"systemPrompt": "You answer in a {{.vars.tone}} tone.",
			"prompt":       "Summarize: {{.input.text}}",
		}).
		AddEdge("t", "llm").
		WithVariable("tone", "curt"))
	c := execContext(t, g, map[string]any{
		"history": []any{
			map[string]any{"role": "user", "content": "earlier question"},
			map[string]any{"role": "assistant", "content": "earlier answer"},
		},
	}, map[string]*NodeResult{
		"t": successResult(map[string]any{"text": "a long document"}),
	})
	n, _ := g.Node("llm")

	fm := &fakeModel{reply: "the summary"}
	out, err := (&llmExecutor{model: fm}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "the summary"}, out.Output)

	req := fm.lastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, model.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You answer in a curt tone.", req.Messages[0].Content)
	assert.Equal(t, "earlier question", req.Messages[1].Content)
	assert.Equal(t, "earlier answer", req.Messages[2].Content)
	assert.Equal(t, "Summarize: a long document", req.Messages[3].Content)
	assert.False(t, req.Stream)
}

func TestLLMExecutorPropagatesModelError(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("llm", NodeTypeLLM, map[string]any{"prompt": "hi"}).
		AddEdge("t", "llm"))
	c := execContext(t, g, nil, map[string]*NodeResult{"t": successResult(nil)})
	n, _ := g.Node("llm")

	_, err := (&llmExecutor{model: &fakeModel{err: "rate limited"}}).Execute(context.Background(), n, c)
	require.ErrorContains(t, err, "rate limited")
}

func TestLLMExecutorRequiresModel(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("llm", NodeTypeLLM, map[string]any{"prompt": "hi"}).
		AddEdge("t", "llm"))
	c := execContext(t, g, nil, nil)
	n, _ := g.Node("llm")

	_, err := (&llmExecutor{}).Execute(context.Background(), n, c)
	require.ErrorContains(t, err, "no model collaborator")
}

func TestStreamOutputExecutorStreamsAndPassesContext(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("rag", NodeTypeRAGSearch, map[string]any{"query": "q"}).
		AddNode("out", NodeTypeStreamOutput, map[string]any{"prompt": "Answer: {{.input.chunks}}"}).
		AddEdge("t", "rag").
		AddEdge("rag", "out"))
	sources := []any{map[string]any{"sourceTitle": "Handbook", "section": "Refunds"}}
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t":   successResult(nil),
		"rag": successResult(map[string]any{"chunks": []any{}, "context": sources}),
	})
	n, _ := g.Node("out")

	fm := &fakeModel{reply: "final answer"}
	out, err := (&streamOutputExecutor{model: fm}).Execute(context.Background(), n, c)
	require.NoError(t, err)
	output, ok := out.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "final answer", output["text"])
	assert.Equal(t, true, output["streamed"])
	assert.Equal(t, sources, output["context"])
	assert.True(t, fm.lastRequest().Stream)
}

func TestRAGSearchExecutor(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("rag", NodeTypeRAGSearch, map[string]any{
			"query": "{{.vars.trigger.message}}",
			"topK":  2,
			"scope": "handbook",
		}).
		AddEdge("t", "rag"))
	c := execContext(t, g, map[string]any{"message": "refund policy"}, map[string]*NodeResult{
		"t": successResult(nil),
	})
	n, _ := g.Node("rag")

	fr := &fakeRetriever{chunks: []*knowledge.Chunk{
		{Text: "Refunds within 30 days.", SourceTitle: "Handbook", Section: "Refunds", Score: 0.9},
	}}
	out, err := (&ragSearchExecutor{retriever: fr}).Execute(context.Background(), n, c)
	require.NoError(t, err)

	require.NotNil(t, fr.query)
	assert.Equal(t, "refund policy", fr.query.Text)
	assert.Equal(t, 2, fr.query.TopK)
	assert.Equal(t, "handbook", fr.query.Scope)

	output := out.Output.(map[string]any)
	assert.Equal(t, []any{map[string]any{
		"text":        "Refunds within 30 days.",
		"sourceTitle": "Handbook",
		"section":     "Refunds",
		"score":       0.9,
	}}, output["chunks"])
	assert.Equal(t, []any{map[string]any{
		"sourceTitle": "Handbook",
		"section":     "Refunds",
	}}, output["context"])
}

func TestApprovalExecutorSuspends(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("ap", NodeTypeApproval, map[string]any{"prompt": "Approve {{.input.amount}}?"}).
		AddEdge("t", "ap"))
	c := execContext(t, g, nil, map[string]*NodeResult{
		"t": successResult(map[string]any{"amount": 120}),
	})
	n, _ := g.Node("ap")

	_, err := (&approvalExecutor{}).Execute(context.Background(), n, c)
	s, ok := AsSuspension(err)
	require.True(t, ok)
	prompt := s.Prompt.(map[string]any)
	assert.Equal(t, "Approve 120?", prompt["prompt"])
	assert.Equal(t, map[string]any{"amount": 120}, prompt["input"])
}

func TestHandoffExecutorSuspends(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("h", NodeTypeHandoff, map[string]any{"reason": "needs a human"}).
		AddEdge("t", "h"))
	c := execContext(t, g, nil, map[string]*NodeResult{"t": successResult("payload")})
	n, _ := g.Node("h")

	_, err := (&handoffExecutor{}).Execute(context.Background(), n, c)
	s, ok := AsSuspension(err)
	require.True(t, ok)
	prompt := s.Prompt.(map[string]any)
	assert.Equal(t, "needs a human", prompt["reason"])
}

func TestUpstreamInputShapes(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("a", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("b", NodeTypeTransform, map[string]any{"expression": "input"}).
		AddNode("m", NodeTypeMerge, nil).
		AddEdge("t", "a").
		AddEdge("t", "b").
		AddEdge("a", "m").
		AddEdge("b", "m"))
	c := execContext(t, g, map[string]any{"message": "hi"}, map[string]*NodeResult{
		"t": successResult(map[string]any{"message": "hi"}),
		"a": successResult("out-a"),
		"b": successResult("out-b"),
	})

	trigger, _ := g.Node("t")
	assert.Equal(t, map[string]any{"message": "hi"}, c.UpstreamInput(trigger))

	a, _ := g.Node("a")
	assert.Equal(t, map[string]any{"message": "hi"}, c.UpstreamInput(a))

	m, _ := g.Node("m")
	assert.Equal(t, map[string]any{"a": "out-a", "b": "out-b"}, c.UpstreamInput(m))
}

func TestRenderTemplate(t *testing.T) {
	g := mustGraph(t, NewBuilder("g").
		AddNode("t", NodeTypeTriggerManual, nil).
		AddNode("llm", NodeTypeLLM, map[string]any{"prompt": "x"}).
		AddEdge("t", "llm").
		WithVariable("tone", "warm"))
	c := execContext(t, g, map[string]any{"message": "hello"}, map[string]*NodeResult{
		"t": successResult(map[string]any{"message": "hello"}),
	})
	n, _ := g.Node("llm")

	t.Run("plain text passes through", func(t *testing.T) {
		out, err := renderTemplate("no placeholders", c, n)
		require.NoError(t, err)
		assert.Equal(t, "no placeholders", out)
	})

	t.Run("renders input vars and trigger", func(t *testing.T) {
		out, err := renderTemplate("{{.vars.tone}}: {{.vars.trigger.message}} / {{.input.message}}", c, n)
		require.NoError(t, err)
		assert.Equal(t, "warm: hello / hello", out)
	})

	t.Run("missing keys render as zero", func(t *testing.T) {
		out, err := renderTemplate("[{{.vars.nope}}]", c, n)
		require.NoError(t, err)
		assert.Equal(t, "[<no value>]", out)
	})
}
