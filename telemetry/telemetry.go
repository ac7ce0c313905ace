//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared tracer handle. Wire an OTLP exporter
// into the global otel provider to export spans; the default provider is
// a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's spans.
const instrumentationName = "github.com/canvasflow-ai/canvasflow"

// Tracer is the tracer used for engine spans.
var Tracer = otel.Tracer(instrumentationName)

// StartNodeSpan opens a span for one node execution.
func StartNodeSpan(ctx context.Context, runID, nodeID, nodeType string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "graph.node.execute",
		trace.WithAttributes(
			attribute.String("canvasflow.run.id", runID),
			attribute.String("canvasflow.node.id", nodeID),
			attribute.String("canvasflow.node.type", nodeType),
		),
	)
}

// StartRunSpan opens a span covering a whole scheduler drive.
func StartRunSpan(ctx context.Context, runID, graphID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "graph.run",
		trace.WithAttributes(
			attribute.String("canvasflow.run.id", runID),
			attribute.String("canvasflow.graph.id", graphID),
		),
	)
}
