package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/progress"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// LogSink writes one structured log line per event.
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

// Consume logs each event in the batch. Failed sources log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Mode != "" {
			fields = append(fields, zap.String("mode", evt.Mode))
		}
		if evt.Source != "" {
			fields = append(fields, zap.String("source", string(evt.Source)))
		}
		if evt.Stage == progress.StageSourceDone || evt.Stage == progress.StageRunDone {
			fields = append(fields,
				zap.String("status", string(evt.Status)),
				zap.Int("records", evt.Records),
				zap.Int("dropped", evt.Dropped),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Attempts > 1 {
			fields = append(fields, zap.Int("attempts", evt.Attempts))
		}
		switch evt.Status {
		case "", rfp.OutcomeSuccess, rfp.OutcomeEmpty:
			s.logger.Info("progress event", fields...)
		default:
			fields = append(fields, zap.String("reason", evt.Reason))
			s.logger.Warn("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
