package ports

import "context"

// EventSink receives operational events from the registry. Implementations
// are fire-and-forget: they must not block the request path and no retry
// semantics are owned here.
type EventSink interface {
	RecordEvent(ctx context.Context, name string, attrs map[string]any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordEvent(context.Context, string, map[string]any) {}
