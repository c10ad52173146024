// Package temporalx runs GenerateText tool loops as Temporal workflows. Each
// model round trip and each tool call is an activity, so a loop survives
// worker restarts and retries failed steps individually.
//
//	runner := temporalx.New(registry.Default, weatherTool)
//	w := worker.New(c, temporalx.TaskQueue, worker.Options{})
//	runner.Register(w)
package temporalx

import (
	"errors"
	"time"

	"github.com/casualjim/weft/provider"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	TaskQueue        = "weft"
	WorkflowName     = "weft.GenerateText"
	GenerateActivity = "weft.Generate"
	ToolActivity     = "weft.CallTool"
)

// Request is the input of the GenerateText workflow.
type Request struct {
	ID string `json:"id,omitempty"`
	// Model is a registry id like "openai:gpt-4o-mini".
	Model    string    `json:"model"`
	System   string    `json:"system,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	// Tools names the runner's tools advertised to the model. Empty means none.
	Tools           []string `json:"tools,omitempty"`
	MaxSteps        int      `json:"max_steps,omitempty"`
	MaxOutputTokens int64    `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

func (r *Request) Validate() error {
	var errs []error
	if r.Model == "" {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "model", Message: "is required"})
	}
	if r.Prompt == "" && len(r.Messages) == 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "prompt", Message: "prompt or messages must be defined"})
	}
	if r.Prompt != "" && len(r.Messages) > 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "prompt", Message: "prompt and messages cannot be defined at the same time"})
	}
	if r.MaxSteps < 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "maxSteps", Message: "must be >= 0"})
	}
	return errors.Join(errs...)
}

func (r *Request) prompt() []Message {
	var msgs []Message
	if r.System != "" {
		msgs = append(msgs, Message{Role: provider.RoleSystem, Text: r.System})
	}
	if r.Prompt != "" {
		return append(msgs, Message{Role: provider.RoleUser, Text: r.Prompt})
	}
	return append(msgs, r.Messages...)
}

// Result is the output of the GenerateText workflow. Text, ToolCalls and
// ToolResults describe the last step.
type Result struct {
	Text         string                `json:"text"`
	FinishReason provider.FinishReason `json:"finish_reason"`
	ToolCalls    []provider.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []provider.ToolResult `json:"tool_results,omitempty"`
	TotalUsage   provider.Usage        `json:"total_usage"`
	Steps        int                   `json:"steps"`
	// Messages are the assistant and tool messages produced by the run.
	Messages []Message `json:"messages,omitempty"`
}

// StepInput is the input of the generate activity.
type StepInput struct {
	Request  Request   `json:"request"`
	Messages []Message `json:"messages"`
}

// StepOutput is one model round trip. ToolResults only holds error results
// for calls whose input failed validation.
type StepOutput struct {
	Text         string                `json:"text"`
	FinishReason provider.FinishReason `json:"finish_reason"`
	ToolCalls    []provider.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []provider.ToolResult `json:"tool_results,omitempty"`
	Usage        provider.Usage        `json:"usage"`
	ResponseID   string                `json:"response_id,omitempty"`
}

// ToolInput is the input of the tool activity.
type ToolInput struct {
	Call     provider.ToolCall `json:"call"`
	Messages []Message         `json:"messages"`
}

// Run is the GenerateText workflow. It alternates generate and tool
// activities until the model stops calling tools, a tool cannot be run
// locally or MaxSteps is reached.
func (r *Runner) Run(ctx workflow.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidArgumentError", err)
	}
	log := workflow.GetLogger(ctx)

	maxSteps := max(req.MaxSteps, 1)
	messages := req.prompt()
	var result Result
	for step := 0; step < maxSteps; step++ {
		log.Info("running step", "step", step, "model", req.Model)
		out, err := r.runGenerateActivity(ctx, StepInput{Request: req, Messages: messages})
		if err != nil {
			return Result{}, err
		}

		assistant := Message{Role: provider.RoleAssistant, Text: out.Text, ToolCalls: out.ToolCalls}
		result.Steps++
		result.Text = out.Text
		result.FinishReason = out.FinishReason
		result.TotalUsage = result.TotalUsage.Add(out.Usage)
		result.ToolCalls = out.ToolCalls
		result.ToolResults = nil
		result.Messages = append(result.Messages, assistant)
		if len(out.ToolCalls) == 0 {
			break
		}

		results, err := r.runToolActivities(ctx, out, messages)
		if err != nil {
			return Result{}, err
		}
		result.ToolResults = results
		if len(results) == 0 {
			break
		}
		toolMsg := Message{Role: provider.RoleTool, ToolResults: results}
		result.Messages = append(result.Messages, toolMsg)
		if len(results) != len(out.ToolCalls) {
			break
		}
		messages = append(messages, assistant, toolMsg)
	}
	return result, nil
}

func (r *Runner) runGenerateActivity(ctx workflow.Context, in StepInput) (StepOutput, error) {
	cctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    5 * time.Minute,
		ScheduleToStartTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	var out StepOutput
	if err := workflow.ExecuteActivity(cctx, GenerateActivity, in).Get(ctx, &out); err != nil {
		return StepOutput{}, err
	}
	return out, nil
}

// runToolActivities runs the valid calls of a step concurrently. Calls with
// invalid input keep the error result produced during generation, and calls
// to tools without an executor produce no result.
func (r *Runner) runToolActivities(ctx workflow.Context, out StepOutput, messages []Message) ([]provider.ToolResult, error) {
	cctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    1 * time.Minute,
		ScheduleToStartTimeout: 10 * time.Second,
		HeartbeatTimeout:       10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			MaximumInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	invalid := make(map[string]provider.ToolResult, len(out.ToolResults))
	for _, tr := range out.ToolResults {
		invalid[tr.ToolCallID] = tr
	}

	futures := make([]workflow.Future, len(out.ToolCalls))
	for i, call := range out.ToolCalls {
		if call.Invalid {
			continue
		}
		futures[i] = workflow.ExecuteActivity(cctx, ToolActivity, ToolInput{Call: call, Messages: messages})
	}

	var results []provider.ToolResult
	for i, call := range out.ToolCalls {
		if futures[i] == nil {
			if tr, ok := invalid[call.ToolCallID]; ok {
				results = append(results, tr)
			}
			continue
		}
		var tr provider.ToolResult
		if err := futures[i].Get(ctx, &tr); err != nil {
			return nil, err
		}
		if tr.ToolCallID != "" {
			results = append(results, tr)
		}
	}
	return results, nil
}
