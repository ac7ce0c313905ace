//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
)

// LLMConfig configures an LLM node.
type LLMConfig struct {
	// Model is the model identifier passed to the collaborator.
	Model string `json:"model,omitempty"`
	// SystemPrompt is an optional system prompt template.
	SystemPrompt string `json:"systemPrompt,omitempty"`
	// Prompt is the user prompt template rendered against the context.
	Prompt string `json:"prompt"`
	// Temperature overrides the sampling temperature.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens bounds the completion length.
	MaxTokens *int `json:"maxTokens,omitempty"`
}

// TransformConfig configures a TRANSFORM node.
type TransformConfig struct {
	// Expression is the CEL expression evaluated against input.
	Expression string `json:"expression"`
}

// CodeConfig configures a CODE node.
type CodeConfig struct {
	// Script is the CEL body evaluated with input bound.
	Script string `json:"script"`
}

// RAGConfig configures a RAG_SEARCH node.
type RAGConfig struct {
	// Query is the query template rendered against the context.
	Query string `json:"query"`
	// TopK bounds the number of returned chunks.
	TopK int `json:"topK,omitempty"`
	// Scope restricts the search to one knowledge base.
	Scope string `json:"scope,omitempty"`
}

// OutputParserConfig configures an OUTPUT_PARSER node.
type OutputParserConfig struct {
	// Strict makes parse failures fatal to the node. When false the
	// parser returns a best-effort fallback object instead.
	Strict bool `json:"strict,omitempty"`
}

// SwitchConfig configures a SWITCH node.
type SwitchConfig struct {
	// Discriminant is the CEL expression whose value selects the case.
	Discriminant string `json:"discriminant"`
	// Cases are the declared case labels.
	Cases []string `json:"cases"`
}

// Merge strategies.
const (
	// MergeStrategyAll waits for every expected inbound source.
	MergeStrategyAll = "all"
	// MergeStrategyRace passes through the first arrived result.
	MergeStrategyRace = "race"
)

// MergeConfig configures a MERGE node.
type MergeConfig struct {
	// Strategy is the join strategy, "all" by default.
	Strategy string `json:"mergeStrategy,omitempty"`
}

// ApprovalConfig configures an APPROVAL node.
type ApprovalConfig struct {
	// Prompt is the template presented to the reviewer.
	Prompt string `json:"prompt,omitempty"`
	// FailOnReject fails the node (and the run) when the decision is a
	// rejection instead of recording it as the node output.
	FailOnReject bool `json:"failOnReject,omitempty"`
}

// HandoffConfig configures a HANDOFF node.
type HandoffConfig struct {
	// Reason is shown to the operator taking over the run.
	Reason string `json:"reason,omitempty"`
}

// StreamOutputConfig configures a STREAM_OUTPUT node.
type StreamOutputConfig struct {
	// Model is the model identifier passed to the collaborator.
	Model string `json:"model,omitempty"`
	// SystemPrompt is an optional system prompt template.
	SystemPrompt string `json:"systemPrompt,omitempty"`
	// Prompt is the user prompt template rendered against the context.
	Prompt string `json:"prompt"`
	// Temperature overrides the sampling temperature.
	Temperature *float64 `json:"temperature,omitempty"`
}

// decodeConfig decodes a node's config map into a typed config struct via
// a JSON round trip, matching how definitions arrive over the wire.
func decodeConfig(n *Node, out any) error {
	data, err := json.Marshal(n.Config)
	if err != nil {
		return fmt.Errorf("encode config of node %s: %w", n.ID, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode config of node %s: %w", n.ID, err)
	}
	return nil
}

func switchConfig(n *Node) (*SwitchConfig, error) {
	var cfg SwitchConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	if cfg.Discriminant == "" {
		return nil, fmt.Errorf("switch node %s has no discriminant", n.ID)
	}
	return &cfg, nil
}

func mergeStrategy(n *Node) string {
	var cfg MergeConfig
	if err := decodeConfig(n, &cfg); err != nil || cfg.Strategy == "" {
		return MergeStrategyAll
	}
	return cfg.Strategy
}

// continueOnFail reports whether the node opted in to non-fatal failures:
// its failure output becomes null and downstream nodes still proceed.
func continueOnFail(n *Node) bool {
	v, ok := n.Config["continueOnFail"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
