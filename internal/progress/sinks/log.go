package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/progress"
)

// LogSink writes run-level events at info and item events at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
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
			zap.String("job_id", evt.JobID),
			zap.String("source", evt.Source),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageItemDone:
			fields = append(fields,
				zap.String("partition", evt.Partition),
				zap.String("external_id", evt.ExternalID),
				zap.String("result", string(evt.Result)),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Debug("progress event", fields...)
			continue
		case progress.StagePartitionDone:
			fields = append(fields, zap.String("partition", evt.Partition), zap.Duration("dur", evt.Dur))
		case progress.StageRunDone:
			fields = append(fields, zap.String("status", string(evt.Status)), zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
