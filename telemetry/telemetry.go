// Package telemetry records spans for model calls.
//
// The tracer is always passed in through Settings; nothing in this package
// reads or installs a global tracer.
package telemetry

import (
	"context"
	"maps"
	"slices"
)

// Attribute is a key/value pair attached to a span or span event.
type Attribute struct {
	Key   string
	Value any
}

func Attr(key string, value any) Attribute {
	return Attribute{Key: key, Value: value}
}

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is a unit of work being recorded.
type Span interface {
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
	RecordError(err error)
	End()
}

// Settings toggles and configures telemetry for a call.
type Settings struct {
	IsEnabled bool
	// FunctionID identifies the calling function in span names and attributes.
	FunctionID string
	// RecordInputs and RecordOutputs control whether prompts and generated
	// content are attached to spans.
	RecordInputs  bool
	RecordOutputs bool
	Metadata      map[string]any
	Tracer        Tracer
}

// Start opens a span for operation. Disabled settings return a span that
// records nothing.
func (s Settings) Start(ctx context.Context, operation string, attrs ...Attribute) (context.Context, Span) {
	if !s.IsEnabled || s.Tracer == nil {
		return ctx, noopSpan{}
	}

	name := operation
	base := []Attribute{Attr("operation.name", operation), Attr("ai.operationId", operation)}
	if s.FunctionID != "" {
		base[0].Value = operation + " " + s.FunctionID
		base = append(base, Attr("ai.telemetry.functionId", s.FunctionID), Attr("resource.name", s.FunctionID))
	}
	for _, k := range slices.Sorted(maps.Keys(s.Metadata)) {
		base = append(base, Attr("ai.telemetry.metadata."+k, s.Metadata[k]))
	}
	return s.Tracer.Start(ctx, name, append(base, attrs...)...)
}

// Inputs returns attrs when inputs are recorded, nil otherwise.
func (s Settings) Inputs(attrs ...Attribute) []Attribute {
	if !s.RecordInputs {
		return nil
	}
	return attrs
}

// Outputs returns attrs when outputs are recorded, nil otherwise.
func (s Settings) Outputs(attrs ...Attribute) []Attribute {
	if !s.RecordOutputs {
		return nil
	}
	return attrs
}

// Noop returns a tracer that records nothing.
func Noop() Tracer {
	return noopTracer{}
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...Attribute)   {}
func (noopSpan) AddEvent(string, ...Attribute) {}
func (noopSpan) RecordError(error)             {}
func (noopSpan) End()                          {}
