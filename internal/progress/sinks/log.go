package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/progress"
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Stage == progress.StageTargetDone {
			fields = append(fields,
				zap.String("target", evt.Target),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Bool("valid", evt.Valid),
				zap.Int("records", evt.Records),
			)
		}
		if evt.Created+evt.Updated+evt.Deleted > 0 {
			fields = append(fields,
				zap.Int("created", evt.Created),
				zap.Int("updated", evt.Updated),
				zap.Int("deleted", evt.Deleted),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("crawl progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
