//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package knowledge defines the retrieval collaborator contract: given a
// query, return ranked text chunks with their source references.
package knowledge

import "context"

// Chunk is one ranked retrieval result.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`
	// SourceTitle names the document the chunk came from.
	SourceTitle string `json:"sourceTitle,omitempty"`
	// Section locates the chunk within its document.
	Section string `json:"section,omitempty"`
	// Score is the relevance score, higher is better.
	Score float64 `json:"score"`
}

// Query is a retrieval request.
type Query struct {
	// Text is the rendered query text.
	Text string `json:"text"`
	// TopK bounds the number of returned chunks; 0 selects the default.
	TopK int `json:"topK,omitempty"`
	// Scope restricts the search to one knowledge base.
	Scope string `json:"scope,omitempty"`
}

// Result is a ranked retrieval response, best match first.
type Result struct {
	// Chunks are the ranked chunks.
	Chunks []*Chunk `json:"chunks"`
}

// Retriever is the retrieval collaborator.
type Retriever interface {
	// Retrieve returns ranked chunks for the query.
	Retrieve(ctx context.Context, query *Query) (*Result, error)
}
