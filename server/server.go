//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the thin HTTP surface of the engine: start a
// run, submit an approval decision, inspect a run, and watch its events
// as a server-sent-event stream. Graph definitions are supplied by the
// external authoring surface and registered read-only.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/canvasflow-ai/canvasflow/event"
	"github.com/canvasflow-ai/canvasflow/graph"
	"github.com/canvasflow-ai/canvasflow/log"
)

// Server wires the scheduler, run store and broadcaster behind HTTP.
type Server struct {
	executor *graph.Executor
	router   *mux.Router

	mu     sync.RWMutex
	graphs map[string]*graph.Graph
}

// New creates a Server around the given scheduler.
func New(executor *graph.Executor) *Server {
	s := &Server{
		executor: executor,
		router:   mux.NewRouter(),
		graphs:   make(map[string]*graph.Graph),
	}
	s.routes()
	return s
}

// RegisterGraph makes a validated graph startable and resumable.
func (s *Server) RegisterGraph(g *graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[g.ID()] = g
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", s.handleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/cancel", s.handleCancelRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/events", s.handleEvents).Methods(http.MethodGet)
}

type startRunRequest struct {
	GraphID string         `json:"graphId"`
	Input   map[string]any `json:"input"`
}

type resumeRequest struct {
	Decision any `json:"decision"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	g, ok := s.graph(req.GraphID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown graph %q", req.GraphID))
		return
	}
	run, err := s.executor.Start(r.Context(), g, req.Input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	// Only the suspended listing is exposed: it is what an approval
	// inbox needs, and terminal runs are fetched by id.
	runs, err := s.executor.Store().ListSuspended(r.Context(), r.URL.Query().Get("graphId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*graph.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.executor.Store().Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, graph.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if _, err := s.executor.Store().Load(r.Context(), runID); err != nil {
		if errors.Is(err, graph.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.executor.Cancel(runID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	run, err := s.executor.Store().Load(r.Context(), runID)
	if err != nil {
		if errors.Is(err, graph.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	g, ok := s.graph(run.GraphID)
	if !ok {
		writeError(w, http.StatusConflict, fmt.Errorf("graph %q not registered", run.GraphID))
		return
	}
	resumed, err := s.executor.Resume(r.Context(), g, runID, req.Decision)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resumed)
}

// handleEvents streams run events as server-sent events until the run
// completes or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	ch, cancel := s.executor.Broadcaster().Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				log.Errorf("encode event %s: %v", evt.ID, err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if evt.Type == event.TypeRunComplete {
				return
			}
		}
	}
}

func (s *Server) graph(id string) (*graph.Graph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	return g, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
