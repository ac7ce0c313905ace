//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a keyword-overlap retriever for tests and
// small deployments without a vector backend.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/canvasflow-ai/canvasflow/knowledge"
)

// defaultTopK bounds result size when the query does not set one.
const defaultTopK = 4

type entry struct {
	chunk *knowledge.Chunk
	scope string
	terms map[string]bool
}

// Retriever implements knowledge.Retriever over an in-memory chunk set,
// scored by term overlap between the query and the chunk text.
type Retriever struct {
	mu      sync.RWMutex
	entries []*entry
}

// New creates an empty in-memory retriever.
func New() *Retriever {
	return &Retriever{}
}

// Add indexes a chunk under the given knowledge-base scope.
func (r *Retriever) Add(chunk *knowledge.Chunk, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry{
		chunk: chunk,
		scope: scope,
		terms: tokenize(chunk.Text + " " + chunk.SourceTitle),
	})
}

// Retrieve returns the chunks with the highest term overlap, best first.
func (r *Retriever) Retrieve(ctx context.Context, query *knowledge.Query) (*knowledge.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topK := query.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	queryTerms := tokenize(query.Text)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var scored []*knowledge.Chunk
	for _, e := range r.entries {
		if query.Scope != "" && e.scope != query.Scope {
			continue
		}
		score := overlap(queryTerms, e.terms)
		if score == 0 {
			continue
		}
		c := *e.chunk
		c.Score = score
		scored = append(scored, &c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return &knowledge.Result{Chunks: scored}, nil
}

func tokenize(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) > 1 {
			terms[f] = true
		}
	}
	return terms
}

func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	var hits int
	for t := range query {
		if doc[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
