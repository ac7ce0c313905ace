//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "fmt"

// Builder provides a fluent interface for constructing graphs
// programmatically. Validation happens once at Build.
//
// Example:
//
//	g, err := NewBuilder("support-flow").
//	  AddNode("trigger-1", NodeTypeTriggerManual, nil).
//	  AddNode("llm-1", NodeTypeLLM, map[string]any{"prompt": "{{.vars.trigger.message}}"}).
//	  AddEdge("trigger-1", "llm-1").
//	  Build()
type Builder struct {
	def      *Definition
	edgeSeq  int
	nodeSeen map[string]bool
}

// NewBuilder creates a builder for a graph with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{
		def:      &Definition{ID: id},
		nodeSeen: make(map[string]bool),
	}
}

// AddNode adds a node.
func (b *Builder) AddNode(id string, t NodeType, config map[string]any) *Builder {
	b.def.Nodes = append(b.def.Nodes, &Node{ID: id, Type: t, Config: config})
	b.nodeSeen[id] = true
	return b
}

// AddEdge adds a plain edge between two nodes.
func (b *Builder) AddEdge(source, target string) *Builder {
	return b.AddHandleEdge(source, "", target)
}

// AddHandleEdge adds an edge with an outgoing route handle.
func (b *Builder) AddHandleEdge(source, handle, target string) *Builder {
	b.edgeSeq++
	b.def.Edges = append(b.def.Edges, &Edge{
		ID:           fmt.Sprintf("e%d", b.edgeSeq),
		Source:       source,
		SourceHandle: handle,
		Target:       target,
	})
	return b
}

// WithVariable declares a workflow variable with its default value.
func (b *Builder) WithVariable(name string, value any) *Builder {
	if b.def.Variables == nil {
		b.def.Variables = make(map[string]any)
	}
	b.def.Variables[name] = value
	return b
}

// Build validates the accumulated definition and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	return New(b.def)
}
