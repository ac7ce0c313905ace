//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"sync"

	"github.com/canvasflow-ai/canvasflow/log"
)

// defaultBufferSize is the buffer size for subscriber channels.
const defaultBufferSize = 256

// Broadcaster fans out run events to any number of subscribers.
//
// Publishing is best-effort and never blocks: when a subscriber's buffer
// is full the event is dropped for that subscriber. Late subscribers do
// not receive past events; the durable Run record is the replay source.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[string]map[int]chan *Event
	nextSubID  int
	bufferSize int
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBufferSize sets the per-subscriber channel buffer size.
func WithBufferSize(size int) BroadcasterOption {
	return func(b *Broadcaster) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[string]map[int]chan *Event),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener for the given run id and returns the
// event channel plus a cancel function. The channel is closed when the
// subscription is cancelled or the run is closed via CloseRun.
func (b *Broadcaster) Subscribe(runID string) (<-chan *Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[int]chan *Event)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[runID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[runID][id]; ok {
			delete(b.subs[runID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its run.
// Slow subscribers lose events rather than blocking the publisher.
func (b *Broadcaster) Publish(evt *Event) {
	if evt == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[evt.RunID] {
		select {
		case ch <- evt:
		default:
			log.Debugf("event broadcaster: dropping %s for run %s (subscriber full)",
				evt.Type, evt.RunID)
		}
	}
}

// CloseRun closes all subscriptions for the given run id.
// Called by the scheduler after emitting run:complete.
func (b *Broadcaster) CloseRun(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs[runID] {
		delete(b.subs[runID], id)
		close(ch)
	}
	delete(b.subs, runID)
}
