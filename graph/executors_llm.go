//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/canvasflow-ai/canvasflow/model"
)

// historyKey is the trigger-input key carrying prior chat messages.
const historyKey = "history"

// llmExecutor handles LLM nodes: render the prompt template, call the
// model collaborator, return its text. Retrieval sources arriving from
// upstream under "context" are passed through on the output.
type llmExecutor struct {
	model model.Model
}

func (e *llmExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	if e.model == nil {
		return nil, errors.New("llm node has no model collaborator wired")
	}
	var cfg LLMConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	req, err := buildModelRequest(c, n, cfg.SystemPrompt, cfg.Prompt, cfg.Model, cfg.Temperature, false)
	if err != nil {
		return nil, err
	}
	req.MaxTokens = cfg.MaxTokens
	ch, err := e.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	text, err := model.Collect(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	output := map[string]any{"text": text}
	if sources := upstreamContext(c, n); sources != nil {
		output["context"] = sources
	}
	return &Outcome{Output: output}, nil
}

// streamOutputExecutor handles STREAM_OUTPUT nodes: the terminal node
// that produces the chat-visible answer. It invokes the model in
// streaming mode and records the accumulated text.
type streamOutputExecutor struct {
	model model.Model
}

func (e *streamOutputExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	if e.model == nil {
		return nil, errors.New("stream output node has no model collaborator wired")
	}
	var cfg StreamOutputConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	req, err := buildModelRequest(c, n, cfg.SystemPrompt, cfg.Prompt, cfg.Model, cfg.Temperature, true)
	if err != nil {
		return nil, err
	}
	ch, err := e.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	text, err := model.Collect(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	output := map[string]any{"text": text, "streamed": true}
	if sources := upstreamContext(c, n); sources != nil {
		output["context"] = sources
	}
	return &Outcome{Output: output}, nil
}

// buildModelRequest renders the prompt templates and assembles the model
// request, prepending prior chat history from the trigger input.
func buildModelRequest(c *ExecContext, n *Node, systemPrompt, prompt, modelName string,
	temperature *float64, stream bool) (*model.Request, error) {
	if prompt == "" {
		return nil, fmt.Errorf("node %s has no prompt", n.ID)
	}
	rendered, err := renderTemplate(prompt, c, n)
	if err != nil {
		return nil, err
	}
	var messages []model.Message
	if systemPrompt != "" {
		sys, err := renderTemplate(systemPrompt, c, n)
		if err != nil {
			return nil, err
		}
		messages = append(messages, model.NewSystemMessage(sys))
	}
	messages = append(messages, triggerHistory(c)...)
	messages = append(messages, model.NewUserMessage(rendered))
	return &model.Request{
		Model:       modelName,
		Messages:    messages,
		Temperature: temperature,
		Stream:      stream,
	}, nil
}

// triggerHistory extracts prior chat messages from the trigger input.
func triggerHistory(c *ExecContext) []model.Message {
	raw, ok := c.TriggerInput()[historyKey]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var history []model.Message
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if role == "" || content == "" {
			continue
		}
		history = append(history, model.Message{Role: model.Role(role), Content: content})
	}
	return history
}

// upstreamContext surfaces retrieval sources passed through from
// upstream nodes whose output carries a "context" field.
func upstreamContext(c *ExecContext, n *Node) any {
	for _, e := range c.Graph.Inbound(n.ID) {
		out, ok := c.Output(e.Source)
		if !ok {
			continue
		}
		m, ok := out.(map[string]any)
		if !ok {
			continue
		}
		if sources, ok := m["context"]; ok {
			return sources
		}
	}
	return nil
}
