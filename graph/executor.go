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
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/canvasflow-ai/canvasflow/event"
	"github.com/canvasflow-ai/canvasflow/log"
	"github.com/canvasflow-ai/canvasflow/telemetry"
)

const (
	// defaultPoolSize is the worker pool size shared by all runs.
	defaultPoolSize = 64
	// defaultNodeTimeout bounds node types without a configured timeout.
	defaultNodeTimeout = 30 * time.Second
)

// defaultTimeouts bounds each executor call per node type: long for
// collaborator calls, short for local evaluation and routing.
var defaultTimeouts = map[NodeType]time.Duration{
	NodeTypeTriggerManual:  5 * time.Second,
	NodeTypeTriggerWebhook: 5 * time.Second,
	NodeTypeLLM:            2 * time.Minute,
	NodeTypeStreamOutput:   2 * time.Minute,
	NodeTypeRAGSearch:      30 * time.Second,
	NodeTypeTransform:      5 * time.Second,
	NodeTypeCode:           5 * time.Second,
	NodeTypeOutputParser:   5 * time.Second,
	NodeTypeSwitch:         5 * time.Second,
	NodeTypeParallel:       5 * time.Second,
	NodeTypeMerge:          5 * time.Second,
	NodeTypeApproval:       30 * time.Second,
	NodeTypeHandoff:        30 * time.Second,
}

// Executor is the scheduler: it drives runs from PENDING to a terminal or
// SUSPENDED state, dispatching ready nodes to registered executors,
// synchronizing merge barriers, routing switches, and checkpointing the
// run after every node transition.
type Executor struct {
	store       RunStore
	registry    *Registry
	broadcaster *event.Broadcaster
	pool        *ants.Pool
	timeouts    map[NodeType]time.Duration

	mu        sync.Mutex
	cancelled map[string]bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	store       RunStore
	registry    *Registry
	broadcaster *event.Broadcaster
	poolSize    int
	timeouts    map[NodeType]time.Duration
}

// WithStore sets the run store. Defaults to an in-memory store.
func WithStore(s RunStore) ExecutorOption {
	return func(o *executorOptions) { o.store = s }
}

// WithRegistry sets the node executor registry. Defaults to the built-in
// registry without collaborators wired.
func WithRegistry(r *Registry) ExecutorOption {
	return func(o *executorOptions) { o.registry = r }
}

// WithBroadcaster sets the event broadcaster.
func WithBroadcaster(b *event.Broadcaster) ExecutorOption {
	return func(o *executorOptions) { o.broadcaster = b }
}

// WithPoolSize sets the size of the shared worker pool.
func WithPoolSize(size int) ExecutorOption {
	return func(o *executorOptions) {
		if size > 0 {
			o.poolSize = size
		}
	}
}

// WithNodeTimeout overrides the executor timeout for one node type.
func WithNodeTimeout(t NodeType, d time.Duration) ExecutorOption {
	return func(o *executorOptions) {
		if o.timeouts == nil {
			o.timeouts = make(map[NodeType]time.Duration)
		}
		o.timeouts[t] = d
	}
}

// NewExecutor creates a scheduler.
func NewExecutor(opts ...ExecutorOption) (*Executor, error) {
	o := executorOptions{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = NewInMemoryRunStore()
	}
	if o.registry == nil {
		o.registry = NewDefaultRegistry()
	}
	if o.broadcaster == nil {
		o.broadcaster = event.NewBroadcaster()
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	timeouts := make(map[NodeType]time.Duration, len(defaultTimeouts))
	for t, d := range defaultTimeouts {
		timeouts[t] = d
	}
	for t, d := range o.timeouts {
		timeouts[t] = d
	}
	return &Executor{
		store:       o.store,
		registry:    o.registry,
		broadcaster: o.broadcaster,
		pool:        pool,
		timeouts:    timeouts,
		cancelled:   make(map[string]bool),
	}, nil
}

// Close releases the worker pool.
func (e *Executor) Close() {
	e.pool.Release()
}

// Broadcaster returns the event broadcaster for subscribing to runs.
func (e *Executor) Broadcaster() *event.Broadcaster { return e.broadcaster }

// Store returns the run store.
func (e *Executor) Store() RunStore { return e.store }

// Execute creates a run for the trigger input and drives it synchronously
// to a terminal or suspended state. The returned run carries the final
// status; node failures surface there, not as the error return, which is
// reserved for infrastructure failures.
func (e *Executor) Execute(ctx context.Context, g *Graph, input map[string]any) (*Run, error) {
	run := e.newRun(g, input)
	if err := e.store.Create(ctx, run); err != nil {
		return nil, err
	}
	return e.drive(ctx, g, run)
}

// Start creates a run and drives it on a background goroutine, returning
// a snapshot of the pending run immediately.
func (e *Executor) Start(ctx context.Context, g *Graph, input map[string]any) (*Run, error) {
	run := e.newRun(g, input)
	if err := e.store.Create(ctx, run); err != nil {
		return nil, err
	}
	snapshot, err := run.Clone()
	if err != nil {
		return nil, err
	}
	go func() {
		if _, err := e.drive(context.WithoutCancel(ctx), g, run); err != nil {
			log.Errorf("run %s: %v", run.ID, err)
		}
	}()
	return snapshot, nil
}

// Cancel marks a run for cancellation. The scheduler observes the mark
// between node executions; a node already invoked runs to completion and
// its result is discarded with the run.
func (e *Executor) Cancel(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled[runID] = true
}

func (e *Executor) isCancelled(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[runID]
}

func (e *Executor) newRun(g *Graph, input map[string]any) *Run {
	run := NewRun(g.ID(), input)
	if vars := g.Variables(); len(vars) > 0 {
		run.Variables = make(map[string]any, len(vars))
		for k, v := range vars {
			run.Variables[k] = v
		}
	}
	run.Frontier = []string{g.TriggerID()}
	return run
}

// drive advances the run until the frontier empties, a node fails
// fatally, or a node suspends. It is re-entered by Resume.
func (e *Executor) drive(ctx context.Context, g *Graph, run *Run) (*Run, error) {
	ctx, span := telemetry.StartRunSpan(ctx, run.ID, run.GraphID)
	defer span.End()

	run.Status = RunStatusRunning
	if err := e.checkpoint(ctx, run); err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil || e.isCancelled(run.ID) {
			e.broadcaster.Publish(event.New(event.TypeStepError, run.ID, "",
				event.WithError(ErrRunCancelled.Error())))
			return e.failRun(ctx, run, ErrRunCancelled)
		}
		// A node left suspended by an earlier wave re-suspends the run.
		if id := firstSuspendedNode(g, run); id != "" {
			return e.suspendRun(ctx, run, id)
		}

		ready := e.readyNodes(g, run)
		if len(ready) == 0 {
			break
		}
		run.Frontier = nodeIDs(ready)
		for _, n := range ready {
			run.NodeResults[n.ID] = &NodeResult{
				Status:    NodeStatusRunning,
				StartedAt: time.Now().UTC(),
			}
			e.broadcaster.Publish(event.New(event.TypeStepStart, run.ID, n.ID,
				event.WithNodeType(string(n.Type))))
		}
		if err := e.checkpoint(ctx, run); err != nil {
			return nil, err
		}

		var fatal *waveResult
		var suspendedID string
		for _, wr := range e.executeWave(ctx, g, run, ready) {
			res := run.NodeResults[wr.node.ID]
			now := time.Now().UTC()
			res.FinishedAt = &now
			duration := now.Sub(res.StartedAt)
			switch {
			case wr.suspension != nil:
				res.Status = NodeStatusSuspended
				if suspendedID == "" {
					suspendedID = wr.node.ID
				}
				e.broadcaster.Publish(event.New(event.TypeStepSuspend, run.ID, wr.node.ID,
					event.WithNodeType(string(wr.node.Type)),
					event.WithPrompt(wr.suspension.Prompt)))
			case wr.err != nil:
				res.Status = NodeStatusFailed
				res.Error = wr.err.Error()
				if continueOnFail(wr.node) {
					res.NonFatal = true
					res.Output = nil
				} else if fatal == nil {
					fatal = wr
				}
				e.broadcaster.Publish(event.New(event.TypeStepError, run.ID, wr.node.ID,
					event.WithNodeType(string(wr.node.Type)),
					event.WithError(wr.err.Error()),
					event.WithDuration(duration)))
			default:
				res.Status = NodeStatusSuccess
				res.Output = wr.outcome.Output
				res.Routes = wr.outcome.Routes
				e.broadcaster.Publish(event.New(event.TypeStepSuccess, run.ID, wr.node.ID,
					event.WithNodeType(string(wr.node.Type)),
					event.WithDuration(duration),
					event.WithOutputPreview(wr.outcome.Output)))
			}
			if err := e.checkpoint(ctx, run); err != nil {
				return nil, err
			}
		}

		if fatal != nil {
			return e.failRun(ctx, run, fatal.err)
		}
		if suspendedID != "" {
			return e.suspendRun(ctx, run, suspendedID)
		}
	}

	run.Status = RunStatusCompleted
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Frontier = nil
	if err := e.checkpoint(ctx, run); err != nil {
		return nil, err
	}
	log.Infof("run %s completed", run.ID)
	e.broadcaster.Publish(event.New(event.TypeRunComplete, run.ID, "",
		event.WithStatus(string(RunStatusCompleted)),
		event.WithDuration(time.Since(run.CreatedAt))))
	e.broadcaster.CloseRun(run.ID)
	return run, nil
}

func (e *Executor) suspendRun(ctx context.Context, run *Run, nodeID string) (*Run, error) {
	run.SuspendedNodeID = nodeID
	run.Status = RunStatusSuspended
	run.Frontier = nil
	if err := e.checkpoint(ctx, run); err != nil {
		return nil, err
	}
	log.Infof("run %s suspended at node %s", run.ID, nodeID)
	return run, nil
}

func (e *Executor) failRun(ctx context.Context, run *Run, cause error) (*Run, error) {
	run.Status = RunStatusFailed
	run.Error = cause.Error()
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Frontier = nil
	if err := e.checkpoint(context.WithoutCancel(ctx), run); err != nil {
		return nil, err
	}
	log.Warnf("run %s failed: %v", run.ID, cause)
	e.broadcaster.Publish(event.New(event.TypeRunComplete, run.ID, "",
		event.WithStatus(string(RunStatusFailed)),
		event.WithError(cause.Error()),
		event.WithDuration(time.Since(run.CreatedAt))))
	e.broadcaster.CloseRun(run.ID)
	return run, nil
}

func (e *Executor) checkpoint(ctx context.Context, run *Run) error {
	if err := e.store.Checkpoint(ctx, run); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", run.ID, err)
	}
	return nil
}

// waveResult is the outcome of one node execution within a wave.
type waveResult struct {
	node       *Node
	outcome    *Outcome
	err        error
	suspension *Suspension
}

// executeWave runs every ready node through the shared worker pool and
// waits for all of them. Sibling branches execute independently; their
// relative order is unspecified.
func (e *Executor) executeWave(ctx context.Context, g *Graph, run *Run, ready []*Node) []*waveResult {
	ec := &ExecContext{Graph: g, Run: run}
	results := make([]*waveResult, len(ready))
	var wg sync.WaitGroup
	for i, n := range ready {
		i, n := i, n
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = e.executeNode(ctx, n, ec)
		}
		if err := e.pool.Submit(task); err != nil {
			// Pool exhausted or released; fall back to inline execution.
			task()
		}
	}
	wg.Wait()
	return results
}

func (e *Executor) executeNode(ctx context.Context, n *Node, ec *ExecContext) (wr *waveResult) {
	wr = &waveResult{node: n}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("node %s panicked: %v\n%s", n.ID, r, debug.Stack())
			wr.outcome = nil
			wr.suspension = nil
			wr.err = &ExecutionError{NodeID: n.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	exec, ok := e.registry.Executor(n.Type)
	if !ok {
		wr.err = &ExecutionError{NodeID: n.ID, Err: fmt.Errorf("%w: %s", ErrNoExecutor, n.Type)}
		return wr
	}

	nctx, span := telemetry.StartNodeSpan(ctx, ec.Run.ID, n.ID, string(n.Type))
	defer span.End()
	nctx, cancel := context.WithTimeout(nctx, e.timeoutFor(n.Type))
	defer cancel()

	outcome, err := exec.Execute(nctx, n, ec)
	if err != nil {
		if s, ok := AsSuspension(err); ok {
			s.NodeID = n.ID
			wr.suspension = s
			return wr
		}
		span.RecordError(err)
		execErr := &ExecutionError{NodeID: n.ID, Err: err}
		if errors.Is(nctx.Err(), context.DeadlineExceeded) {
			execErr.Timeout = true
		}
		wr.err = execErr
		return wr
	}
	wr.outcome = outcome
	return wr
}

func (e *Executor) timeoutFor(t NodeType) time.Duration {
	if d, ok := e.timeouts[t]; ok {
		return d
	}
	return defaultNodeTimeout
}

// readyNodes returns every node whose dependencies are satisfied and
// which has not executed yet, in definition order.
func (e *Executor) readyNodes(g *Graph, run *Run) []*Node {
	var ready []*Node
	for _, id := range g.NodeIDs() {
		if _, executed := run.NodeResults[id]; executed {
			continue
		}
		n, _ := g.Node(id)
		if id == g.TriggerID() {
			ready = append(ready, n)
			continue
		}
		inbound := g.Inbound(id)
		if len(inbound) == 0 {
			// Not the trigger and nothing feeds it: unreachable.
			continue
		}
		if n.Type == NodeTypeMerge {
			if mergeReady(g, run, n) {
				ready = append(ready, n)
			}
			continue
		}
		all := true
		for _, edge := range inbound {
			if !edgeFired(g, run, edge) {
				all = false
				break
			}
		}
		if all {
			ready = append(ready, n)
		}
	}
	return ready
}

// mergeReady implements the join semantics: "all" requires every inbound
// edge to have fired, "race" requires the first.
func mergeReady(g *Graph, run *Run, n *Node) bool {
	inbound := g.Inbound(n.ID)
	if mergeStrategy(n) == MergeStrategyRace {
		for _, edge := range inbound {
			if edgeFired(g, run, edge) {
				return true
			}
		}
		return false
	}
	for _, edge := range inbound {
		if !edgeFired(g, run, edge) {
			return false
		}
	}
	return true
}

// edgeFired reports whether data flowed across the edge: the source
// reached a final result and, for switch sources, the recorded route
// matches the edge handle.
func edgeFired(g *Graph, run *Run, edge *Edge) bool {
	res, ok := run.NodeResults[edge.Source]
	if !ok || !res.Done() {
		return false
	}
	src, _ := g.Node(edge.Source)
	if src.Type == NodeTypeSwitch && res.Status == NodeStatusSuccess {
		for _, route := range res.Routes {
			if route == edge.SourceHandle {
				return true
			}
		}
		return false
	}
	return true
}

func firstSuspendedNode(g *Graph, run *Run) string {
	for _, id := range g.NodeIDs() {
		if res, ok := run.NodeResults[id]; ok && res.Status == NodeStatusSuspended {
			return id
		}
	}
	return ""
}

func nodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
