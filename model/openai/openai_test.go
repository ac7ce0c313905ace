//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow-ai/canvasflow/model"
)

func TestBuildChatRequest(t *testing.T) {
	m := New("gpt-4o-mini", WithAPIKey("test-key"))
	temperature := 0.2
	maxTokens := 128

	params := m.buildChatRequest(&model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("be curt"),
			model.NewUserMessage("earlier question"),
			model.NewAssistantMessage("earlier answer"),
			model.NewUserMessage("current question"),
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})

	assert.Equal(t, openai.ChatModel("gpt-4o-mini"), params.Model)
	require.Len(t, params.Messages, 4)
	assert.NotNil(t, params.Messages[0].OfSystem)
	assert.NotNil(t, params.Messages[1].OfUser)
	assert.NotNil(t, params.Messages[2].OfAssistant)
	assert.NotNil(t, params.Messages[3].OfUser)
	assert.Equal(t, 0.2, params.Temperature.Value)
	assert.EqualValues(t, 128, params.MaxCompletionTokens.Value)
}

func TestBuildChatRequestModelOverride(t *testing.T) {
	m := New("gpt-4o-mini")
	params := m.buildChatRequest(&model.Request{
		Model:    "gpt-4o",
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	assert.Equal(t, openai.ChatModel("gpt-4o"), params.Model)
}

func TestInfo(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", New("gpt-4o-mini").Info().Name)
}
