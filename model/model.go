//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package model defines the model-call collaborator contract. The engine
// treats the language model as an opaque capability: given a prompt and
// message history, produce text, optionally as a stream of deltas.
package model

import (
	"context"
	"errors"
	"strings"
)

// Role is the author role of a message.
type Role string

const (
	// RoleSystem is the system prompt role.
	RoleSystem Role = "system"
	// RoleUser is the user role.
	RoleUser Role = "user"
	// RoleAssistant is the assistant role.
	RoleAssistant Role = "assistant"
)

// Message is one turn of model input history.
type Message struct {
	// Role is the author role.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is a model generation request.
type Request struct {
	// Model is the model identifier; empty selects the adapter default.
	Model string `json:"model,omitempty"`
	// Messages is the prompt plus prior history, oldest first.
	Messages []Message `json:"messages"`
	// Temperature overrides the sampling temperature.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens bounds the completion length.
	MaxTokens *int `json:"maxTokens,omitempty"`
	// Stream requests incremental delta responses.
	Stream bool `json:"stream,omitempty"`
}

// Response is one model response chunk. Non-streaming calls produce a
// single response with Done set; streaming calls produce a sequence of
// delta responses followed by a final Done response.
type Response struct {
	// Content is the text of this chunk: a delta while streaming, the
	// full completion otherwise.
	Content string `json:"content"`
	// Done marks the final response of the sequence.
	Done bool `json:"done"`
	// Error carries a response-level error. The channel is still closed
	// normally after an error response.
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError is an error reported inside a response stream.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`
	// Type is the provider-specific error type.
	Type string `json:"type,omitempty"`
}

// Model is the model-call collaborator. Implementations send one or more
// responses on the returned channel and close it when generation ends.
type Model interface {
	// GenerateContent generates content from the request.
	GenerateContent(ctx context.Context, req *Request) (<-chan *Response, error)
	// Info returns basic information about the model.
	Info() Info
}

// Info describes a model implementation.
type Info struct {
	// Name is the model name.
	Name string
}

// Collect drains a response channel into the full generated text. It
// returns the first response-level error encountered, if any.
func Collect(ctx context.Context, ch <-chan *Response) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case rsp, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if rsp.Error != nil {
				return sb.String(), errors.New(rsp.Error.Message)
			}
			sb.WriteString(rsp.Content)
			if rsp.Done {
				return sb.String(), nil
			}
		}
	}
}
