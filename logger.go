package carml

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/carml/embedding"
	"github.com/hupe1980/carml/nn"
	"github.com/hupe1980/carml/workspace"
)

// Logger wraps slog.Logger with training-job specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that writes JSON-formatted logs to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewLoggerFromFormat creates a text or JSON logger writing to w.
func NewLoggerFromFormat(w io.Writer, format, level string) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "text":
		return NewTextLogger(w, lvl), nil
	case "json":
		return NewJSONLogger(w, lvl), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// WithRun adds the run ID to every record.
func (l *Logger) WithRun(run *workspace.Run) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", run.ID),
	}
}

// LogStage logs the outcome of a pipeline stage.
func (l *Logger) LogStage(ctx context.Context, stage string, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stage failed",
			"stage", stage,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "stage completed",
			"stage", stage,
			"duration", duration,
		)
	}
}

// LogDataset logs a dataset lookup or registration.
func (l *Logger) LogDataset(ctx context.Context, action string, ds *workspace.Dataset) {
	l.InfoContext(ctx, "dataset "+action,
		"name", ds.Name,
		"version", ds.Version,
		"kind", string(ds.Kind),
		"tags", ds.Tags,
	)
}

// LogCoverage logs how many vocabulary rows received pretrained vectors.
func (l *Logger) LogCoverage(ctx context.Context, cov embedding.Coverage) {
	l.InfoContext(ctx, "embedding coverage",
		"hits", cov.Hits,
		"misses", cov.Misses,
		"ratio", cov.Ratio(),
	)
}

// LogEpoch logs the metrics of one training epoch.
func (l *Logger) LogEpoch(ctx context.Context, e nn.EpochLog) {
	attrs := []any{
		"epoch", e.Epoch,
		"loss", e.Loss,
		"acc", e.Acc,
		"duration", e.Duration,
	}
	if e.HasValidation {
		attrs = append(attrs, "val_loss", e.ValLoss, "val_acc", e.ValAcc)
	}
	l.InfoContext(ctx, "epoch completed", attrs...)
}

// LogMetric logs a value reported to the run tracker.
func (l *Logger) LogMetric(ctx context.Context, name string, value float64, description string) {
	l.InfoContext(ctx, description,
		"metric", name,
		"value", value,
	)
}

// LogModel logs a model registration.
func (l *Logger) LogModel(ctx context.Context, m *workspace.Model) {
	l.InfoContext(ctx, "Model registered: "+m.Name,
		"description", m.Description,
		"version", m.Version,
	)
}
