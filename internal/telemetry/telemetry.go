// Package telemetry records agent thinking steps for observers.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dyluth/parley/internal/reasoning"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is one thinking step as seen by observers.
type Record struct {
	Agent      string    `json:"agent"`
	Timestamp  time.Time `json:"timestamp"`
	Step       int       `json:"step"`
	Thought    string    `json:"thought"`
	Reasoning  string    `json:"reasoning"`
	Evidence   []string  `json:"evidence"`
	Conclusion string    `json:"conclusion,omitempty"`
}

// FromStep converts a reasoning step into a record.
func FromStep(agentName string, step reasoning.ThinkingStep, at time.Time) Record {
	return Record{
		Agent:      agentName,
		Timestamp:  at.UTC(),
		Step:       step.StepNumber,
		Thought:    step.Content,
		Reasoning:  step.Reasoning,
		Evidence:   append([]string(nil), step.Evidence...),
		Conclusion: step.Conclusion,
	}
}

// Recorder accepts thinking records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// LogRecorder writes records to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a recorder that logs at info level.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "telemetry")}
}

func (r *LogRecorder) Record(ctx context.Context, rec Record) error {
	attrs := []any{
		"agent", rec.Agent,
		"step", rec.Step,
		"thought", rec.Thought,
		"reasoning", rec.Reasoning,
		"evidence", rec.Evidence,
	}
	if rec.Conclusion != "" {
		attrs = append(attrs, "conclusion", rec.Conclusion)
	}
	r.logger.InfoContext(ctx, "agent thinking", attrs...)
	return nil
}

// MultiRecorder fans a record out to several recorders and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SpanRecorder adds each record as an event on the span in ctx. Without an
// active span the event is dropped.
type SpanRecorder struct{}

func (SpanRecorder) Record(ctx context.Context, rec Record) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	span.AddEvent("agent thinking", trace.WithAttributes(
		attribute.String("agent", rec.Agent),
		attribute.Int("step", rec.Step),
		attribute.String("thought", rec.Thought),
		attribute.StringSlice("evidence", rec.Evidence),
	))
	return nil
}
