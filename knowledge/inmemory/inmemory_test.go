//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow-ai/canvasflow/knowledge"
)

func seededRetriever() *Retriever {
	r := New()
	r.Add(&knowledge.Chunk{
		Text: "Refunds are processed within 30 days of purchase.",
		SourceTitle: "Handbook", Section: "Refunds",
	}, "support")
	r.Add(&knowledge.Chunk{
		Text: "Shipping takes five business days inside the EU.",
		SourceTitle: "Handbook", Section: "Shipping",
	}, "support")
	r.Add(&knowledge.Chunk{
		Text: "Employees accrue vacation days monthly.",
		SourceTitle: "HR Guide", Section: "Vacation",
	}, "internal")
	return r
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	r := seededRetriever()
	res, err := r.Retrieve(context.Background(), &knowledge.Query{
		Text: "how are refunds processed",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, "Refunds", res.Chunks[0].Section)
	assert.Greater(t, res.Chunks[0].Score, 0.0)
}

func TestRetrieveScopeFilters(t *testing.T) {
	r := seededRetriever()
	res, err := r.Retrieve(context.Background(), &knowledge.Query{
		Text:  "vacation days",
		Scope: "support",
	})
	require.NoError(t, err)
	for _, c := range res.Chunks {
		assert.NotEqual(t, "Vacation", c.Section)
	}
}

func TestRetrieveTopKBoundsResults(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.Add(&knowledge.Chunk{Text: "refund policy details", SourceTitle: "Doc"}, "")
	}
	res, err := r.Retrieve(context.Background(), &knowledge.Query{Text: "refund policy", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 3)

	res, err = r.Retrieve(context.Background(), &knowledge.Query{Text: "refund policy"})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, defaultTopK)
}

func TestRetrieveNoMatches(t *testing.T) {
	r := seededRetriever()
	res, err := r.Retrieve(context.Background(), &knowledge.Query{Text: "quantum chromodynamics"})
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
}

func TestRetrieveHonoursContext(t *testing.T) {
	r := seededRetriever()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Retrieve(ctx, &knowledge.Query{Text: "refunds"})
	require.Error(t, err)
}
