//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"sort"
	"sync"
)

// RunStore is the durable record of executions. It is the single source
// of truth for a run: a suspended or crashed run is reconstructed from the
// stored record alone. Checkpoint must be atomic per run; implementations
// use revision checks so two concurrent resume/step operations cannot
// race on the same run.
type RunStore interface {
	// Create persists a new run. Returns ErrRunExists on duplicate ids.
	Create(ctx context.Context, run *Run) error
	// Load returns the run with the given id, or ErrRunNotFound.
	Load(ctx context.Context, runID string) (*Run, error)
	// Checkpoint persists the run if its revision matches the stored
	// one, then bumps run.Rev. Returns ErrRevConflict on a lost race.
	Checkpoint(ctx context.Context, run *Run) error
	// ListSuspended returns suspended runs, optionally scoped to a graph.
	ListSuspended(ctx context.Context, graphID string) ([]*Run, error)
	// Delete removes a run.
	Delete(ctx context.Context, runID string) error
}

// InMemoryRunStore is a RunStore backed by process memory. Suitable for
// tests and single-process deployments without durability requirements.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewInMemoryRunStore creates an empty in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*Run)}
}

// Create persists a new run.
func (s *InMemoryRunStore) Create(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return ErrRunExists
	}
	clone, err := run.Clone()
	if err != nil {
		return err
	}
	s.runs[run.ID] = clone
	return nil
}

// Load returns a copy of the run with the given id.
func (s *InMemoryRunStore) Load(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone()
}

// Checkpoint persists the run under a revision check.
func (s *InMemoryRunStore) Checkpoint(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	if stored.Rev != run.Rev {
		return ErrRevConflict
	}
	run.Rev++
	clone, err := run.Clone()
	if err != nil {
		run.Rev--
		return err
	}
	s.runs[run.ID] = clone
	return nil
}

// ListSuspended returns suspended runs, newest first.
func (s *InMemoryRunStore) ListSuspended(ctx context.Context, graphID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Run
	for _, run := range s.runs {
		if run.Status != RunStatusSuspended {
			continue
		}
		if graphID != "" && run.GraphID != graphID {
			continue
		}
		clone, err := run.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a run.
func (s *InMemoryRunStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
