//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the workflow graph model and its execution engine:
// node and edge types, graph validation, the run data model, durable run
// stores, and the scheduler that walks a graph from its trigger node.
package graph

import (
	"encoding/json"
	"fmt"
)

// NodeType represents the type of a node in the graph.
type NodeType string

const (
	// NodeTypeTriggerManual starts a run from a manual trigger firing.
	NodeTypeTriggerManual NodeType = "TRIGGER_MANUAL"
	// NodeTypeTriggerWebhook starts a run from an inbound webhook payload.
	NodeTypeTriggerWebhook NodeType = "TRIGGER_WEBHOOK"
	// NodeTypeLLM calls the model collaborator with a rendered prompt.
	NodeTypeLLM NodeType = "LLM"
	// NodeTypeTransform evaluates an expression against the upstream output.
	NodeTypeTransform NodeType = "TRANSFORM"
	// NodeTypeCode evaluates a script body with the upstream output bound.
	NodeTypeCode NodeType = "CODE"
	// NodeTypeRAGSearch queries the retrieval collaborator.
	NodeTypeRAGSearch NodeType = "RAG_SEARCH"
	// NodeTypeParallel fans out to every outgoing edge unconditionally.
	NodeTypeParallel NodeType = "PARALLEL"
	// NodeTypeMerge joins parallel branches before continuing.
	NodeTypeMerge NodeType = "MERGE"
	// NodeTypeSwitch routes to the outgoing edge whose handle matches.
	NodeTypeSwitch NodeType = "SWITCH"
	// NodeTypeApproval suspends the run until a reviewer decides.
	NodeTypeApproval NodeType = "APPROVAL"
	// NodeTypeHandoff suspends the run to hand it to a human operator.
	NodeTypeHandoff NodeType = "HANDOFF"
	// NodeTypeStreamOutput produces the chat-visible streamed answer.
	NodeTypeStreamOutput NodeType = "STREAM_OUTPUT"
	// NodeTypeOutputParser parses upstream text into structured data.
	NodeTypeOutputParser NodeType = "OUTPUT_PARSER"
)

// DefaultHandle is the implicit switch handle taken when no case matches.
const DefaultHandle = "default"

// IsTrigger reports whether the node type starts a run.
func (t NodeType) IsTrigger() bool {
	return t == NodeTypeTriggerManual || t == NodeTypeTriggerWebhook
}

// Valid reports whether the node type is a known type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTriggerManual, NodeTypeTriggerWebhook, NodeTypeLLM,
		NodeTypeTransform, NodeTypeCode, NodeTypeRAGSearch,
		NodeTypeParallel, NodeTypeMerge, NodeTypeSwitch,
		NodeTypeApproval, NodeTypeHandoff, NodeTypeStreamOutput,
		NodeTypeOutputParser:
		return true
	}
	return false
}

// Node represents a node in the graph. Nodes are immutable once a run starts.
type Node struct {
	// ID is the unique identifier of the node.
	ID string `json:"id"`
	// Type is the type of the node.
	Type NodeType `json:"type"`
	// Config is the type-specific configuration of the node.
	Config map[string]any `json:"config,omitempty"`
}

// Edge represents a directed edge between two nodes. SourceHandle
// disambiguates multiple outgoing routes from one node: switch nodes use
// case labels plus the implicit "default", parallel nodes fire every edge.
type Edge struct {
	// ID is the unique identifier of the edge.
	ID string `json:"id"`
	// Source is the source node ID.
	Source string `json:"source"`
	// SourceHandle is the outgoing route label, empty for plain edges.
	SourceHandle string `json:"sourceHandle,omitempty"`
	// Target is the target node ID.
	Target string `json:"target"`
}

// Definition is the serialized form of a workflow graph as supplied by the
// external authoring surface.
type Definition struct {
	// ID is the graph identifier.
	ID string `json:"id"`
	// Name is the human-readable graph name.
	Name string `json:"name,omitempty"`
	// Nodes are the nodes of the graph.
	Nodes []*Node `json:"nodes"`
	// Edges are the edges of the graph.
	Edges []*Edge `json:"edges"`
	// Variables are the declared workflow variables with their defaults.
	Variables map[string]any `json:"variables,omitempty"`
}

// Graph is an immutable, validated workflow graph.
type Graph struct {
	id        string
	name      string
	nodes     map[string]*Node
	order     []string
	outbound  map[string][]*Edge
	inbound   map[string][]*Edge
	trigger   string
	variables map[string]any
}

// Load parses a JSON graph definition and validates it.
func Load(data []byte) (*Graph, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("parse definition: %v", err)}}
	}
	return New(&def)
}

// New validates a definition and builds the indexed graph.
func New(def *Definition) (*Graph, error) {
	if def == nil {
		return nil, &ValidationError{Issues: []string{"definition is nil"}}
	}
	g := &Graph{
		id:        def.ID,
		name:      def.Name,
		nodes:     make(map[string]*Node, len(def.Nodes)),
		outbound:  make(map[string][]*Edge),
		inbound:   make(map[string][]*Edge),
		variables: def.Variables,
	}
	var issues []string

	for _, n := range def.Nodes {
		switch {
		case n == nil:
			issues = append(issues, "nil node in definition")
		case n.ID == "":
			issues = append(issues, "node with empty id")
		case !n.Type.Valid():
			issues = append(issues, fmt.Sprintf("node %s: unknown type %q", n.ID, n.Type))
		default:
			if _, exists := g.nodes[n.ID]; exists {
				issues = append(issues, fmt.Sprintf("duplicate node id %s", n.ID))
				continue
			}
			g.nodes[n.ID] = n
			g.order = append(g.order, n.ID)
			if n.Type.IsTrigger() {
				if g.trigger != "" {
					issues = append(issues, fmt.Sprintf(
						"multiple trigger nodes: %s and %s", g.trigger, n.ID))
					continue
				}
				g.trigger = n.ID
			}
		}
	}
	if g.trigger == "" {
		issues = append(issues, "graph has no trigger node")
	}

	for _, e := range def.Edges {
		if e == nil {
			issues = append(issues, "nil edge in definition")
			continue
		}
		if _, ok := g.nodes[e.Source]; !ok {
			issues = append(issues, fmt.Sprintf("edge %s: unknown source node %s", e.ID, e.Source))
			continue
		}
		if _, ok := g.nodes[e.Target]; !ok {
			issues = append(issues, fmt.Sprintf("edge %s: unknown target node %s", e.ID, e.Target))
			continue
		}
		g.outbound[e.Source] = append(g.outbound[e.Source], e)
		g.inbound[e.Target] = append(g.inbound[e.Target], e)
	}

	issues = append(issues, g.validateTrigger()...)
	issues = append(issues, g.validateSwitchHandles()...)
	issues = append(issues, g.validateMerges()...)
	issues = append(issues, g.validateAcyclic()...)

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return g, nil
}

// ID returns the graph identifier.
func (g *Graph) ID() string { return g.id }

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns the node IDs in definition order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// TriggerID returns the ID of the trigger node.
func (g *Graph) TriggerID() string { return g.trigger }

// Outbound returns the outgoing edges of a node.
func (g *Graph) Outbound(nodeID string) []*Edge { return g.outbound[nodeID] }

// Inbound returns the incoming edges of a node.
func (g *Graph) Inbound(nodeID string) []*Edge { return g.inbound[nodeID] }

// Variables returns the declared workflow variables.
func (g *Graph) Variables() map[string]any { return g.variables }

// MergeSources returns the expected inbound source node IDs of a merge
// node, in definition order of the inbound edges. The set is fixed at run
// start: every node with an edge into the merge.
func (g *Graph) MergeSources(nodeID string) []string {
	edges := g.inbound[nodeID]
	seen := make(map[string]bool, len(edges))
	var sources []string
	for _, e := range edges {
		if !seen[e.Source] {
			seen[e.Source] = true
			sources = append(sources, e.Source)
		}
	}
	return sources
}

func (g *Graph) validateTrigger() []string {
	if g.trigger == "" {
		return nil
	}
	if len(g.inbound[g.trigger]) > 0 {
		return []string{fmt.Sprintf("trigger node %s has inbound edges", g.trigger)}
	}
	return nil
}

func (g *Graph) validateSwitchHandles() []string {
	var issues []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Type != NodeTypeSwitch {
			continue
		}
		cfg, err := switchConfig(n)
		if err != nil {
			issues = append(issues, fmt.Sprintf("node %s: %v", id, err))
			continue
		}
		allowed := make(map[string]bool, len(cfg.Cases)+1)
		for _, c := range cfg.Cases {
			allowed[c] = true
		}
		allowed[DefaultHandle] = true
		for _, e := range g.outbound[id] {
			if !allowed[e.SourceHandle] {
				issues = append(issues, fmt.Sprintf(
					"edge %s: switch node %s has no case %q", e.ID, id, e.SourceHandle))
			}
		}
	}
	return issues
}

func (g *Graph) validateMerges() []string {
	var issues []string
	for _, id := range g.order {
		if g.nodes[id].Type == NodeTypeMerge && len(g.inbound[id]) == 0 {
			issues = append(issues, fmt.Sprintf("merge node %s has no inbound edges", id))
		}
	}
	return issues
}

// validateAcyclic rejects graphs where a node is reachable from itself.
func (g *Graph) validateAcyclic() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			cycle = append(cycle, id)
			return true
		case done:
			return false
		}
		state[id] = visiting
		for _, e := range g.outbound[id] {
			if visit(e.Target) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && visit(id) {
			return []string{fmt.Sprintf("graph contains a cycle through node %s", cycle[0])}
		}
	}
	return nil
}
