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

	"github.com/canvasflow-ai/canvasflow/knowledge"
)

// ragSearchExecutor handles RAG_SEARCH nodes: render the query template,
// call the retrieval collaborator, return ranked chunks plus a context
// array of source references for downstream model nodes.
type ragSearchExecutor struct {
	retriever knowledge.Retriever
}

func (e *ragSearchExecutor) Execute(ctx context.Context, n *Node, c *ExecContext) (*Outcome, error) {
	if e.retriever == nil {
		return nil, errors.New("rag search node has no retriever wired")
	}
	var cfg RAGConfig
	if err := decodeConfig(n, &cfg); err != nil {
		return nil, err
	}
	if cfg.Query == "" {
		return nil, fmt.Errorf("node %s has no query", n.ID)
	}
	query, err := renderTemplate(cfg.Query, c, n)
	if err != nil {
		return nil, err
	}
	result, err := e.retriever.Retrieve(ctx, &knowledge.Query{
		Text:  query,
		TopK:  cfg.TopK,
		Scope: cfg.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	chunks := make([]any, 0, len(result.Chunks))
	sources := make([]any, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunks = append(chunks, map[string]any{
			"text":        chunk.Text,
			"sourceTitle": chunk.SourceTitle,
			"section":     chunk.Section,
			"score":       chunk.Score,
		})
		sources = append(sources, map[string]any{
			"sourceTitle": chunk.SourceTitle,
			"section":     chunk.Section,
		})
	}
	return &Outcome{Output: map[string]any{
		"chunks":  chunks,
		"context": sources,
	}}, nil
}
