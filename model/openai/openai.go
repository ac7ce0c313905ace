//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package openai provides a model collaborator backed by the OpenAI API
// or any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/canvasflow-ai/canvasflow/model"
)

// channelBufferSize is the buffer size of the response channel.
const channelBufferSize = 64

// Model implements model.Model using the OpenAI chat completions API.
type Model struct {
	name   string
	client openai.Client
}

// Option configures the Model.
type Option func(*options)

type options struct {
	clientOpts []openaiopt.RequestOption
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, openaiopt.WithAPIKey(key))
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, openaiopt.WithBaseURL(url))
	}
}

// New creates a Model for the given default model name.
func New(name string, opts ...Option) *Model {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Model{
		name:   name,
		client: openai.NewClient(o.clientOpts...),
	}
}

// Info returns basic information about the model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent generates content from the request. Streaming requests
// produce delta responses followed by a final Done response; otherwise a
// single Done response carries the full completion.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	params := m.buildChatRequest(req)
	ch := make(chan *model.Response, channelBufferSize)
	if req.Stream {
		go m.streamCompletion(ctx, params, ch)
	} else {
		go m.completion(ctx, params, ch)
	}
	return ch, nil
}

func (m *Model) buildChatRequest(req *model.Request) openai.ChatCompletionNewParams {
	name := req.Model
	if name == "" {
		name = m.name
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(name),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params
}

func (m *Model) completion(ctx context.Context, params openai.ChatCompletionNewParams, ch chan<- *model.Response) {
	defer close(ch)
	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		sendResponse(ctx, ch, errorResponse(err))
		return
	}
	rsp := &model.Response{Done: true}
	if len(completion.Choices) > 0 {
		rsp.Content = completion.Choices[0].Message.Content
	}
	sendResponse(ctx, ch, rsp)
}

func (m *Model) streamCompletion(ctx context.Context, params openai.ChatCompletionNewParams, ch chan<- *model.Response) {
	defer close(ch)
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if !sendResponse(ctx, ch, &model.Response{Content: delta}) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		sendResponse(ctx, ch, errorResponse(err))
		return
	}
	sendResponse(ctx, ch, &model.Response{Done: true})
}

func errorResponse(err error) *model.Response {
	return &model.Response{
		Done:  true,
		Error: &model.ResponseError{Message: err.Error(), Type: "api_error"},
	}
}

func sendResponse(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
