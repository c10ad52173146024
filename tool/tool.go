package tool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/casualjim/weft/pkg/stdx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/fogfish/opts"
)

// CallOptions carries the context of a single tool invocation.
type CallOptions struct {
	// ToolCallID is the id the model assigned to the call.
	ToolCallID string
	// Messages is the conversation that led to the call.
	Messages []provider.Message
}

// Output is one value produced by a streaming tool. Preliminary outputs are
// progress updates; the final output is the tool result.
type Output struct {
	Value       any
	Preliminary bool
}

// ExecuteFunc runs a tool against validated input.
type ExecuteFunc func(ctx context.Context, input any, options CallOptions) (any, error)

// StreamExecuteFunc runs a tool that yields a sequence of outputs.
// The last non-preliminary output is the result of the call.
type StreamExecuteFunc func(ctx context.Context, input any, options CallOptions) iter.Seq2[Output, error]

// Definition represents a tool the model can call.
// It includes the tool's name, description, input schema and the function
// that executes it. A definition without an executor is still advertised to
// the model, but calls to it are left to the caller.
type Definition struct {
	Name          string
	Description   string
	InputSchema   schema.Schema
	Execute       ExecuteFunc
	StreamExecute StreamExecuteFunc
}

// Executable reports whether the definition can be run locally.
func (d Definition) Executable() bool {
	return d.Execute != nil || d.StreamExecute != nil
}

// FunctionTool returns the description of the tool sent to the model.
func (d Definition) FunctionTool() provider.FunctionTool {
	ft := provider.FunctionTool{Name: d.Name, Description: d.Description}
	if d.InputSchema != nil {
		ft.InputSchema = d.InputSchema.JSONSchema()
	}
	return ft
}

// Run executes the tool and yields its outputs. A tool with only an
// ExecuteFunc yields exactly one final output.
func (d Definition) Run(ctx context.Context, input any, options CallOptions) iter.Seq2[Output, error] {
	if d.StreamExecute != nil {
		return d.StreamExecute(ctx, input, options)
	}
	return func(yield func(Output, error) bool) {
		if d.Execute == nil {
			yield(Output{}, fmt.Errorf("tool %s has no executor", d.Name))
			return
		}
		v, err := d.Execute(ctx, input, options)
		if err != nil {
			yield(Output{}, err)
			return
		}
		yield(Output{Value: v}, nil)
	}
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("tool name is required"))
	}
	if d.InputSchema == nil {
		errs = append(errs, fmt.Errorf("tool %q: input schema is required", d.Name))
	}
	if d.Execute != nil && d.StreamExecute != nil {
		errs = append(errs, fmt.Errorf("tool %q: set either Execute or StreamExecute, not both", d.Name))
	}
	return errors.Join(errs...)
}

// Set is a collection of tools keyed by name.
type Set map[string]Definition

// NewSet builds a set from definitions. Later definitions replace earlier
// ones with the same name.
func NewSet(defs ...Definition) Set {
	s := make(Set, len(defs))
	for _, d := range defs {
		s[d.Name] = d
	}
	return s
}

// Names returns the tool names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FunctionTools describes the set to a model, sorted by name.
// When active is non-empty only those tools are included.
func (s Set) FunctionTools(active ...string) []provider.FunctionTool {
	var out []provider.FunctionTool
	for _, name := range s.Names() {
		if len(active) > 0 && !slices.Contains(active, name) {
			continue
		}
		out = append(out, s[name].FunctionTool())
	}
	return out
}

// Option is a type alias for a function that modifies the definition of a
// tool. It allows for flexible and customizable configuration of tools by
// applying various options.
type Option = opts.Option[Definition]

// Name sets the name the model uses to call the tool.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the description of the tool shown to the model.
var Description = opts.ForName[Definition, string]("Description")

// WithSchema replaces the input schema derived from the tool's input type.
func WithSchema(s schema.Schema) Option {
	return opts.Type[Definition](func(d *Definition) error {
		if s == nil {
			return errors.New("schema must not be nil")
		}
		d.InputSchema = s
		return nil
	})
}

// New creates a Definition from a typed function. The input schema is
// reflected from In, and validated input is decoded into In before fn runs.
//
// Parameters:
//   - name: The name the model uses to call the tool.
//   - fn: The function that executes the tool.
//   - options: A variadic list of options to configure the definition.
//
// Returns:
//
//	A Definition wrapping fn, or an error when the options are invalid.
func New[In, Out any](name string, fn func(context.Context, In, CallOptions) (Out, error), options ...Option) (Definition, error) {
	def := Definition{Name: name, InputSchema: schema.For[In]()}
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	def.Execute = func(ctx context.Context, input any, co CallOptions) (any, error) {
		in, err := decode[In](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in, co)
	}
	return def, def.Validate()
}

// Must wraps New and panics when it returns an error.
func Must[In, Out any](name string, fn func(context.Context, In, CallOptions) (Out, error), options ...Option) Definition {
	return stdx.Must1(New(name, fn, options...))
}

// NewStream creates a Definition from a typed function that yields outputs.
func NewStream[In any](name string, fn func(context.Context, In, CallOptions) iter.Seq2[Output, error], options ...Option) (Definition, error) {
	def := Definition{Name: name, InputSchema: schema.For[In]()}
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	def.StreamExecute = func(ctx context.Context, input any, co CallOptions) iter.Seq2[Output, error] {
		in, err := decode[In](input)
		if err != nil {
			return func(yield func(Output, error) bool) { yield(Output{}, err) }
		}
		return fn(ctx, in, co)
	}
	return def, def.Validate()
}

// Dynamic creates a Definition whose input shape is only known at runtime.
// Input is passed to fn as the decoded JSON value.
func Dynamic(name string, s schema.Schema, fn ExecuteFunc, options ...Option) (Definition, error) {
	def := Definition{Name: name, InputSchema: s, Execute: fn}
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	return def, def.Validate()
}

func decode[In any](input any) (In, error) {
	if in, ok := input.(In); ok {
		return in, nil
	}
	in, err := schema.Convert[In](input)
	if err != nil {
		return in, fmt.Errorf("failed to decode tool input: %w", err)
	}
	return in, nil
}
