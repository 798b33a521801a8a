package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// LogSink emits a structured log line per event. Start and finish are logged
// at info, coalesced updates at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		if evt.Kind == progress.KindUpdate {
			level = zapcore.DebugLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		ce.Write(
			zap.String("kind", string(evt.Kind)),
			zap.String("source_id", evt.SourceID),
			zap.String("resource", evt.Resource),
			zap.String("method", evt.Method),
			zap.String("content_type", evt.ContentType),
			zap.Stringer("state", evt.State),
			zap.Int64("progress", evt.Progress),
			zap.Int64("expected", evt.Expected),
			zap.Bool("complete", evt.Complete()),
			zap.Time("event_ts", evt.TS),
		)
	}
	return nil
}

// Close implements progress.Sink; it flushes buffered log output.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
