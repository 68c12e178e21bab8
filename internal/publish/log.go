package publish

import (
	"context"
	"log/slog"
)

// LogPublisher writes one log line per record.
type LogPublisher struct {
	log *slog.Logger
}

// Compile-time interface satisfaction check.
var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher logs to logger, or slog.Default() when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{log: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, rec Record) error {
	attrs := []any{
		"id", rec.ID.String(),
		"device", rec.Device,
		"kg", rec.WeightKg,
		"impedance", rec.Impedance,
	}
	if c := rec.Composition; c != nil {
		attrs = append(attrs, "fat_pct", c.BodyFatPct, "water_pct", c.BodyWaterPct)
	}
	p.log.InfoContext(ctx, "[PUBLISH] measurement", attrs...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
