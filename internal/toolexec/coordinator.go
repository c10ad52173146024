// Package toolexec validates tool calls coming out of a model stream, runs
// their executors concurrently and merges the results back into the stream.
package toolexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/tool"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// RepairRequest is handed to a RepairFunc when a tool call cannot be parsed.
type RepairRequest struct {
	Call  provider.ToolCall
	Tools tool.Set
	Err   error
}

// InputSchemaOf returns the input schema of the named tool, or nil.
func (r RepairRequest) InputSchemaOf(name string) *jsonschema.Schema {
	def, ok := r.Tools[name]
	if !ok || def.InputSchema == nil {
		return nil
	}
	return def.InputSchema.JSONSchema()
}

// RepairFunc attempts to fix a tool call that named an unknown tool or had
// invalid input. Returning a nil call without an error declines the repair.
type RepairFunc func(ctx context.Context, req RepairRequest) (*provider.ToolCall, error)

// Config configures a Coordinator.
type Config struct {
	Tools    tool.Set
	Repair   RepairFunc
	Messages []provider.Message
	// OnPreliminary receives intermediate outputs of streaming tools.
	OnPreliminary func(provider.ToolResult)
	Logger        *slog.Logger
}

// Coordinator parses tool calls and runs them.
type Coordinator struct {
	tools         tool.Set
	repair        RepairFunc
	messages      []provider.Message
	onPreliminary func(provider.ToolResult)
	log           *slog.Logger
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tools:         cfg.Tools,
		repair:        cfg.Repair,
		messages:      cfg.Messages,
		onPreliminary: cfg.OnPreliminary,
		log:           logger.With(slogx.LoggerName("toolexec")),
	}
}

// ParsedCall is a tool call whose input passed validation.
type ParsedCall struct {
	Call provider.ToolCall
	// Input is the decoded JSON input.
	Input any
	// Value is the input as returned by the tool's schema.
	Value any
	Tool  tool.Definition
}

// Parse resolves the tool of call and validates its input. Failures are
// *provider.NoSuchToolError or *provider.InvalidToolInputError; when a repair
// function is configured it gets one chance to fix the call, and a failing
// repair returns *provider.ToolCallRepairError.
func (c *Coordinator) Parse(ctx context.Context, call provider.ToolCall) (ParsedCall, error) {
	parsed, err := c.parse(call)
	if err == nil || c.repair == nil {
		return parsed, err
	}

	repaired, rerr := c.repair(ctx, RepairRequest{Call: call, Tools: c.tools, Err: err})
	if rerr != nil {
		return ParsedCall{Call: call}, &provider.ToolCallRepairError{OriginalErr: err, Cause: rerr}
	}
	if repaired == nil {
		return ParsedCall{Call: call}, err
	}
	c.log.Debug("repaired tool call", slog.String("tool", repaired.ToolName), slog.String("tool_call_id", repaired.ToolCallID))
	return c.parse(*repaired)
}

func (c *Coordinator) parse(call provider.ToolCall) (ParsedCall, error) {
	def, ok := c.tools[call.ToolName]
	if !ok {
		return ParsedCall{Call: call}, &provider.NoSuchToolError{ToolName: call.ToolName, AvailableTools: c.tools.Names()}
	}

	text := strings.TrimSpace(call.Input)
	if text == "" {
		text = "{}"
	}

	var input any
	if err := json.Unmarshal([]byte(text), &input); err != nil {
		return ParsedCall{Call: call}, &provider.InvalidToolInputError{ToolName: call.ToolName, ToolInput: call.Input, Cause: err}
	}

	value := input
	if def.InputSchema != nil {
		var err error
		if value, err = def.InputSchema.Validate(input); err != nil {
			return ParsedCall{Call: call}, &provider.InvalidToolInputError{ToolName: call.ToolName, ToolInput: call.Input, Cause: err}
		}
	}

	return ParsedCall{Call: call, Input: input, Value: value, Tool: def}, nil
}

// Run executes a parsed call and returns its result. Executor errors and
// panics become error results. Preliminary outputs of streaming tools go to
// the configured OnPreliminary sink; the last final output is the result,
// or the last output when none was final.
func (c *Coordinator) Run(ctx context.Context, p ParsedCall) provider.ToolResult {
	return c.run(ctx, p, c.onPreliminary)
}

func (c *Coordinator) run(ctx context.Context, p ParsedCall, onPreliminary func(provider.ToolResult)) (result provider.ToolResult) {
	result = provider.ToolResult{
		ToolCallID: p.Call.ToolCallID,
		ToolName:   p.Call.ToolName,
		Input:      p.Input,
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tool %s panicked: %v", p.Call.ToolName, r)
			c.log.Error("tool execution panicked", slog.String("tool", p.Call.ToolName), slogx.Error(err))
			result.Output = err.Error()
			result.IsError = true
		}
	}()

	options := tool.CallOptions{ToolCallID: p.Call.ToolCallID, Messages: c.messages}

	var (
		final, last tool.Output
		hasFinal    bool
	)
	for out, err := range p.Tool.Run(ctx, p.Value, options) {
		if err != nil {
			c.log.Debug("tool execution failed", slog.String("tool", p.Call.ToolName), slogx.Error(err))
			result.Output = err.Error()
			result.IsError = true
			return result
		}
		last = out
		if out.Preliminary {
			if onPreliminary != nil {
				onPreliminary(provider.ToolResult{
					ToolCallID:  p.Call.ToolCallID,
					ToolName:    p.Call.ToolName,
					Input:       p.Input,
					Output:      out.Value,
					Preliminary: true,
				})
			}
			continue
		}
		final, hasFinal = out, true
	}

	if hasFinal {
		result.Output = final.Value
	} else {
		result.Output = last.Value
	}
	return result
}

// Execute parses and runs a call synchronously. Calls that cannot be parsed
// return the parse error; input validation failures are also reported as an
// error result so they can be fed back to the model.
func (c *Coordinator) Execute(ctx context.Context, call provider.ToolCall) (provider.ToolResult, error) {
	parsed, err := c.Parse(ctx, call)
	if err != nil {
		var nst *provider.NoSuchToolError
		if errors.As(err, &nst) {
			return provider.ToolResult{}, err
		}
		return invalidResult(call, err), err
	}
	if !parsed.Tool.Executable() {
		return provider.ToolResult{}, nil
	}
	return c.Run(ctx, parsed), nil
}

// Executable reports whether a call to name would produce a result.
func (c *Coordinator) Executable(name string) bool {
	def, ok := c.tools[name]
	return ok && def.Executable()
}

func invalidResult(call provider.ToolCall, err error) provider.ToolResult {
	return provider.ToolResult{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Input:      call.Input,
		Output:     err.Error(),
		IsError:    true,
	}
}
