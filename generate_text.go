package weft

import (
	"context"
	"log/slog"
	"sync"

	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/internal/toolexec"
	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
	"golang.org/x/sync/errgroup"
)

// GenerateTextResult is the outcome of GenerateText. The embedded StepResult
// describes the last step.
type GenerateTextResult struct {
	StepResult
	TotalUsage provider.Usage
	Steps      []StepResult
	// ResponseMessages are the assistant and tool messages produced by the
	// call, ready to be appended to the conversation.
	ResponseMessages []provider.Message
}

// GenerateText generates text with model and waits for the result. Tool calls
// are executed concurrently and, with WithMaxSteps above one, fed back to the
// model until it stops calling tools.
//
// A call to an unknown tool fails the call with *NoSuchToolError. Calls with
// invalid input are marked Invalid and answered with an error result.
func GenerateText(ctx context.Context, model provider.LanguageModel, options ...CallOption) (*GenerateTextResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	var prompt []provider.Message
	if err == nil {
		prompt, err = s.prompt()
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	logger := s.Logger.With(slogx.LoggerName("weft"), slog.String("model", provider.ID(model)))
	ctx, span := s.Telemetry.Start(ctx, "ai.generateText", modelAttributes(&s, model, prompt)...)
	defer span.End()

	var (
		steps     []StepResult
		responses []provider.Message
	)
	messages := prompt
	for i := 0; ; i++ {
		step, err := generateStep(ctx, model, &s, messages, i)
		if err != nil {
			logger.Debug("generate failed", slog.Int("step", i), slogx.Error(err))
			span.RecordError(err)
			s.emitError(err)
			return nil, err
		}
		steps = append(steps, step)
		if s.OnStepFinish != nil {
			s.OnStepFinish(step)
		}
		stepMessages := step.responseMessages()
		responses = append(responses, stepMessages...)
		if !step.IsContinued {
			break
		}
		messages = append(messages, stepMessages...)
	}

	last := steps[len(steps)-1]
	result := &GenerateTextResult{
		StepResult:       last,
		TotalUsage:       totalUsage(steps),
		Steps:            steps,
		ResponseMessages: responses,
	}
	span.SetAttributes(s.Telemetry.Outputs(
		telemetry.Attr("ai.response.text", last.Text),
		telemetry.Attr("ai.response.toolCalls", last.ToolCalls),
	)...)
	span.SetAttributes(finishAttributes(last.FinishReason, result.TotalUsage)...)

	if s.OnFinish != nil {
		s.OnFinish(FinishEvent{StepResult: last, TotalUsage: result.TotalUsage, Steps: steps})
	}
	return result, nil
}

func generateStep(ctx context.Context, model provider.LanguageModel, s *CallSettings, messages []provider.Message, index int) (StepResult, error) {
	ctx, span := s.Telemetry.Start(ctx, "ai.generateText.doGenerate", telemetry.Attr("ai.step", index))
	defer span.End()

	gen, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.GenerateResult, error) {
		return model.Generate(ctx, s.callOptions(messages))
	})
	if err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}
	span.SetAttributes(finishAttributes(gen.FinishReason, gen.Usage)...)

	step := StepResult{
		Text:             gen.Text,
		FinishReason:     gen.FinishReason,
		Usage:            gen.Usage,
		Warnings:         gen.Warnings,
		Request:          gen.Request,
		Response:         gen.Response,
		ProviderMetadata: gen.ProviderMetadata,
	}
	if len(gen.ToolCalls) == 0 {
		return step, nil
	}

	repair, onPreliminary := serializeCallbacks(s.Repair, s.OnPreliminaryToolResult)
	coord := toolexec.New(toolexec.Config{
		Tools:         s.Tools,
		Repair:        repair,
		Messages:      messages,
		OnPreliminary: onPreliminary,
		Logger:        s.Logger,
	})

	calls := make([]provider.ToolCall, len(gen.ToolCalls))
	results := make([]provider.ToolResult, len(gen.ToolCalls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range gen.ToolCalls {
		calls[i] = call
		g.Go(func() error {
			res, err := coord.Execute(gctx, call)
			if err != nil {
				if IsNoSuchTool(err) {
					return err
				}
				calls[i].Invalid = true
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return StepResult{}, err
	}

	step.ToolCalls = calls
	for _, res := range results {
		// tools without an executor leave no result
		if res.ToolCallID != "" {
			step.ToolResults = append(step.ToolResults, res)
		}
	}
	step.IsContinued = step.continues(index, s.MaxSteps)
	return step, nil
}

// serializeCallbacks guards the user callbacks with one mutex, since the tools
// of a step execute on parallel goroutines.
func serializeCallbacks(repair RepairFunc, onPreliminary func(provider.ToolResult)) (RepairFunc, func(provider.ToolResult)) {
	var mu sync.Mutex
	var r RepairFunc
	if repair != nil {
		r = func(ctx context.Context, req RepairRequest) (*provider.ToolCall, error) {
			mu.Lock()
			defer mu.Unlock()
			return repair(ctx, req)
		}
	}
	var p func(provider.ToolResult)
	if onPreliminary != nil {
		p = func(tr provider.ToolResult) {
			mu.Lock()
			defer mu.Unlock()
			onPreliminary(tr)
		}
	}
	return r, p
}
