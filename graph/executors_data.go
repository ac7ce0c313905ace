//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canvasflow-ai/canvasflow/cel"
)

// transformExecutor handles TRANSFORM nodes: evaluate the configured CEL
// expression against the aggregated upstream output. Expression errors
// are fatal to the node.
type transformExecutor struct{}

func (e *transformExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	var cfg TransformConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	out, err := cel.Eval(cfg.Expression, c.UpstreamInput(n), c.Variables(), c.NodeOutputs())
	if err != nil {
		return nil, err
	}
	return &Outcome{Output: out}, nil
}

// codeExecutor handles CODE nodes: like TRANSFORM, but the configured
// body is a script with input bound. Same sandboxing and fatality rules.
type codeExecutor struct{}

func (e *codeExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	var cfg CodeConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	out, err := cel.Eval(cfg.Script, c.UpstreamInput(n), c.Variables(), c.NodeOutputs())
	if err != nil {
		return nil, err
	}
	return &Outcome{Output: out}, nil
}

// outputParserExecutor handles OUTPUT_PARSER nodes: parse the upstream
// textual output as JSON. Strict mode fails the node on a parse error;
// lenient mode returns a best-effort fallback object.
type outputParserExecutor struct{}

func (e *outputParserExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	var cfg OutputParserConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	text := upstreamText(c, n)
	parsed, err := parseJSONObject(text)
	if err != nil {
		if cfg.Strict {
			return nil, fmt.Errorf("parse upstream output: %w", err)
		}
		return &Outcome{Output: map[string]any{"text": text}}, nil
	}
	return &Outcome{Output: parsed}, nil
}

// upstreamText flattens the aggregated upstream output to text. Model
// nodes put their completion under "text"; anything else is rendered as
// its JSON form.
func upstreamText(c *ExecContext, n *Node) string {
	input := c.UpstreamInput(n)
	switch v := input.(type) {
	case string:
		return v
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(data)
}

// parseJSONObject parses text as a JSON object, tolerating surrounding
// prose and markdown fences around the first top-level object.
func parseJSONObject(text string) (map[string]any, error) {
	candidate := strings.TrimSpace(text)
	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			candidate = candidate[start : end+1]
		}
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}
