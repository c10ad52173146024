package temporalx

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/casualjim/weft"
	"github.com/casualjim/weft/internal/toolexec"
	"github.com/casualjim/weft/pkg/uuidx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/registry"
	"github.com/casualjim/weft/tool"
	"github.com/go-openapi/swag"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Runner hosts the GenerateText workflow and its activities. Models are
// resolved through the registry on the worker, so requests only carry ids.
type Runner struct {
	registry *registry.Registry
	tools    tool.Set
}

// New creates a runner. A nil registry uses registry.Default.
func New(reg *registry.Registry, tools ...tool.Definition) *Runner {
	if reg == nil {
		reg = registry.Default
	}
	return &Runner{registry: reg, tools: tool.NewSet(tools...)}
}

// Registrar is satisfied by worker.Worker and the testsuite environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers the workflow and activities under their well known names.
func (r *Runner) Register(w Registrar) {
	w.RegisterWorkflowWithOptions(r.Run, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(r.Generate, activity.RegisterOptions{Name: GenerateActivity})
	w.RegisterActivityWithOptions(r.CallTool, activity.RegisterOptions{Name: ToolActivity})
}

// Generate is the activity for one model round trip. Tools are advertised
// without their executors so the calls come back to the workflow.
func (r *Runner) Generate(ctx context.Context, in StepInput) (StepOutput, error) {
	log := activity.GetLogger(ctx)
	log.Info("running generate activity", "model", in.Request.Model)

	model, err := r.registry.LanguageModel(in.Request.Model)
	if err != nil {
		return StepOutput{}, activityError(err)
	}

	options := []weft.CallOption{
		weft.WithMessages(toProvider(in.Messages)...),
		// retries belong to the activity
		weft.WithMaxRetries(0),
	}
	if in.Request.MaxOutputTokens > 0 {
		options = append(options, weft.WithMaxOutputTokens(in.Request.MaxOutputTokens))
	}
	if in.Request.Temperature != nil {
		options = append(options, weft.WithTemperature(swag.Float64Value(in.Request.Temperature)))
	}
	if len(in.Request.Tools) > 0 {
		decls, err := r.declarations(in.Request.Tools)
		if err != nil {
			return StepOutput{}, activityError(err)
		}
		options = append(options, weft.WithTools(decls...))
	}

	res, err := weft.GenerateText(ctx, model, options...)
	if err != nil {
		return StepOutput{}, activityError(err)
	}
	return StepOutput{
		Text:         res.Text,
		FinishReason: res.FinishReason,
		ToolCalls:    res.ToolCalls,
		ToolResults:  res.ToolResults,
		Usage:        res.Usage,
		ResponseID:   res.Response.ID,
	}, nil
}

func (r *Runner) declarations(names []string) ([]tool.Definition, error) {
	decls := make([]tool.Definition, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			return nil, &provider.NoSuchToolError{ToolName: name, AvailableTools: r.tools.Names()}
		}
		def.Execute = nil
		def.StreamExecute = nil
		decls = append(decls, def)
	}
	return decls, nil
}

// CallTool is the activity that executes one tool call. Tool failures become
// error results; only an unknown tool fails the activity.
func (r *Runner) CallTool(ctx context.Context, in ToolInput) (provider.ToolResult, error) {
	log := activity.GetLogger(ctx)
	log.Info("running tool activity", "tool", in.Call.ToolName, "call", in.Call.ToolCallID)
	activity.RecordHeartbeat(ctx, in.Call.ToolCallID)

	coord := toolexec.New(toolexec.Config{
		Tools:    r.tools,
		Messages: toProvider(in.Messages),
	})
	res, err := coord.Execute(ctx, in.Call)
	if err != nil && weft.IsNoSuchTool(err) {
		return provider.ToolResult{}, activityError(err)
	}
	return res, nil
}

// activityError marks errors that another attempt cannot fix as non
// retryable, typed by the name of the error.
func activityError(err error) error {
	var (
		noModel    *provider.NoSuchModelError
		noProvider *provider.NoSuchProviderError
		noTool     *provider.NoSuchToolError
		invalid    *provider.InvalidArgumentError
		apiErr     *provider.APICallError
		target     error
	)
	switch {
	case errors.As(err, &noModel):
		target = noModel
	case errors.As(err, &noProvider):
		target = noProvider
	case errors.As(err, &noTool):
		target = noTool
	case errors.As(err, &invalid):
		target = invalid
	case errors.As(err, &apiErr) && !apiErr.IsRetryable:
		target = apiErr
	default:
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), reflect.TypeOf(target).Elem().Name(), err)
}

// Execute starts the GenerateText workflow on TaskQueue and waits for its
// result.
func Execute(ctx context.Context, c client.Client, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.ID == "" {
		req.ID = uuidx.NewString()
	}

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("generate-%s", req.ID),
		TaskQueue: TaskQueue,
		// a request id runs once; retries happen inside the workflow
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, WorkflowName, req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to start workflow: %w", err)
	}

	var result Result
	if err := run.Get(ctx, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}
