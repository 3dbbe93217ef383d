package observability

import (
	"context"
	"log/slog"

	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordEvent(_ context.Context, name string, attrs map[string]any) {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	s.logger.Info(name, args...)
}

// Fanout forwards each event to every sink in order.
func Fanout(sinks ...ports.EventSink) ports.EventSink {
	return fanout(sinks)
}

type fanout []ports.EventSink

func (f fanout) RecordEvent(ctx context.Context, name string, attrs map[string]any) {
	for _, s := range f {
		s.RecordEvent(ctx, name, attrs)
	}
}
