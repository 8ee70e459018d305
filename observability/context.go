package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	pipelineIDKey   contextKey = "pipeline_id"
	stageKey        contextKey = "stage"
	checkpointIDKey contextKey = "checkpoint_id"
	traceIDKey      contextKey = "trace_id"
	spanIDKey       contextKey = "span_id"
)

// WithPipelineID adds a pipeline run ID to the context.
func WithPipelineID(ctx context.Context, pipelineID string) context.Context {
	return context.WithValue(ctx, pipelineIDKey, pipelineID)
}

// PipelineIDFromContext retrieves the pipeline run ID from context.
// Returns empty string if not present.
func PipelineIDFromContext(ctx context.Context) string {
	if v := ctx.Value(pipelineIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithStage adds the current stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext retrieves the stage name from context.
// Returns empty string if not present.
func StageFromContext(ctx context.Context) string {
	if v := ctx.Value(stageKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithCheckpointID adds a checkpoint ID to the context.
func WithCheckpointID(ctx context.Context, checkpointID string) context.Context {
	return context.WithValue(ctx, checkpointIDKey, checkpointID)
}

// CheckpointIDFromContext retrieves the checkpoint ID from context.
// Returns empty string if not present.
func CheckpointIDFromContext(ctx context.Context) string {
	if v := ctx.Value(checkpointIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithTraceSpan adds trace and span IDs to the context.
func WithTraceSpan(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	return ctx
}

// TraceSpanFromContext retrieves trace and span IDs from context.
// Returns empty strings if not present.
func TraceSpanFromContext(ctx context.Context) (traceID, spanID string) {
	if v := ctx.Value(traceIDKey); v != nil {
		if id, ok := v.(string); ok {
			traceID = id
		}
	}
	if v := ctx.Value(spanIDKey); v != nil {
		if id, ok := v.(string); ok {
			spanID = id
		}
	}
	return traceID, spanID
}

// PipelineContext contains all the context data for a pipeline run.
type PipelineContext struct {
	PipelineID   string
	Stage        string
	CheckpointID string
	TraceID      string
	SpanID       string
}

// WithPipelineContext adds all pipeline context to the context.
func WithPipelineContext(ctx context.Context, pc PipelineContext) context.Context {
	if pc.PipelineID != "" {
		ctx = WithPipelineID(ctx, pc.PipelineID)
	}
	if pc.Stage != "" {
		ctx = WithStage(ctx, pc.Stage)
	}
	if pc.CheckpointID != "" {
		ctx = WithCheckpointID(ctx, pc.CheckpointID)
	}
	if pc.TraceID != "" || pc.SpanID != "" {
		ctx = WithTraceSpan(ctx, pc.TraceID, pc.SpanID)
	}
	return ctx
}

// PipelineContextFromContext extracts all pipeline context from the context.
func PipelineContextFromContext(ctx context.Context) PipelineContext {
	traceID, spanID := TraceSpanFromContext(ctx)
	return PipelineContext{
		PipelineID:   PipelineIDFromContext(ctx),
		Stage:        StageFromContext(ctx),
		CheckpointID: CheckpointIDFromContext(ctx),
		TraceID:      traceID,
		SpanID:       spanID,
	}
}
