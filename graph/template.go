//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"strings"
	"text/template"
)

// renderTemplate renders a prompt or query template against the execution
// context. Templates see .input (aggregated upstream output), .vars
// (workflow variables plus .vars.trigger) and .nodes (outputs by node id).
func renderTemplate(tmpl string, c *ExecContext, n *Node) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New(n.ID).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	data := map[string]any{
		"input": c.UpstreamInput(n),
		"vars":  c.Variables(),
		"nodes": c.NodeOutputs(),
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return sb.String(), nil
}
