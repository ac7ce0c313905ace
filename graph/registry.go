//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"

	"github.com/canvasflow-ai/canvasflow/knowledge"
	"github.com/canvasflow-ai/canvasflow/model"
)

// Outcome is the successful result of one node execution.
type Outcome struct {
	// Output is the node's contribution to the execution context.
	Output any
	// Routes are the outgoing handles selected by a switch node; nil for
	// every other node type.
	Routes []string
}

// NodeExecutor executes one node type. Implementations return an Outcome
// on success, a *Suspension error to pause the run, or any other error to
// fail the node. The scheduler depends only on this capability, never on
// concrete node types.
type NodeExecutor interface {
	// Execute runs the node against the execution context.
	Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error)
}

// NodeExecutorFunc adapts a function to the NodeExecutor interface.
type NodeExecutorFunc func(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error)

// Execute implements NodeExecutor.
func (f NodeExecutorFunc) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	return f(ctx, n, c)
}

// Registry binds node types to their executors.
type Registry struct {
	executors map[NodeType]NodeExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[NodeType]NodeExecutor)}
}

// Register binds an executor to a node type, replacing any previous one.
func (r *Registry) Register(t NodeType, ex NodeExecutor) {
	r.executors[t] = ex
}

// Executor returns the executor registered for a node type.
func (r *Registry) Executor(t NodeType) (NodeExecutor, bool) {
	ex, ok := r.executors[t]
	return ex, ok
}

// RegistryOption configures NewDefaultRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	model     model.Model
	retriever knowledge.Retriever
}

// WithModel wires the model-call collaborator used by LLM and
// STREAM_OUTPUT nodes.
func WithModel(m model.Model) RegistryOption {
	return func(o *registryOptions) { o.model = m }
}

// WithRetriever wires the retrieval collaborator used by RAG_SEARCH nodes.
func WithRetriever(r knowledge.Retriever) RegistryOption {
	return func(o *registryOptions) { o.retriever = r }
}

// NewDefaultRegistry creates a registry with every built-in executor
// bound. Node types whose collaborator is not wired fail at execution
// time, not at registration time.
func NewDefaultRegistry(opts ...RegistryOption) *Registry {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}
	r := NewRegistry()
	r.Register(NodeTypeTriggerManual, &triggerExecutor{})
	r.Register(NodeTypeTriggerWebhook, &triggerExecutor{})
	r.Register(NodeTypeLLM, &llmExecutor{model: o.model})
	r.Register(NodeTypeStreamOutput, &streamOutputExecutor{model: o.model})
	r.Register(NodeTypeTransform, &transformExecutor{})
	r.Register(NodeTypeCode, &codeExecutor{})
	r.Register(NodeTypeOutputParser, &outputParserExecutor{})
	r.Register(NodeTypeRAGSearch, &ragSearchExecutor{retriever: o.retriever})
	r.Register(NodeTypeSwitch, &switchExecutor{})
	r.Register(NodeTypeParallel, &parallelExecutor{})
	r.Register(NodeTypeMerge, &mergeExecutor{})
	r.Register(NodeTypeApproval, &approvalExecutor{})
	r.Register(NodeTypeHandoff, &handoffExecutor{})
	return r
}
