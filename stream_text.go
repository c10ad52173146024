package weft

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/casualjim/weft/internal/broadcast"
	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/internal/toolexec"
	"github.com/casualjim/weft/pkg/future"
	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/pkg/uuidx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
	"github.com/tidwall/gjson"
)

// StreamTextResult is the handle of a running StreamText call.
//
// The call runs once, regardless of how many views are read. Every view
// replays the call from its first event, so views can be read concurrently,
// one after the other, or not at all. The deferred accessors block until
// the call ends; when it fails they all return the failure.
type StreamTextResult struct {
	log *broadcast.Log[provider.StreamEvent]

	text             future.CompletableFuture[string]
	usage            future.CompletableFuture[provider.Usage]
	totalUsage       future.CompletableFuture[provider.Usage]
	finishReason     future.CompletableFuture[provider.FinishReason]
	providerMetadata future.CompletableFuture[gjson.Result]
	request          future.CompletableFuture[provider.RequestMetadata]
	response         future.CompletableFuture[provider.ResponseInfo]
	toolCalls        future.CompletableFuture[[]provider.ToolCall]
	toolResults      future.CompletableFuture[[]provider.ToolResult]
	warnings         future.CompletableFuture[[]provider.Warning]
	steps            future.CompletableFuture[[]StepResult]
}

// StreamText streams text from model. The provider call starts right away;
// the returned result is never nil. Invalid settings and provider failures
// surface as an Error event in FullStream and as errors of the deferred
// accessors.
//
// With tools and WithMaxSteps above one, tool results are fed back to the
// model until it stops calling tools or the step limit is reached. Each step
// is framed by StepStart and StepFinish events and the stream ends with one
// Finish event carrying the total usage.
func StreamText(ctx context.Context, model provider.LanguageModel, options ...CallOption) *StreamTextResult {
	r := newStreamTextResult()

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
		r.fail(err)
		return r
	}

	go r.pump(ctx, model, &s, prompt)
	return r
}

func newStreamTextResult() *StreamTextResult {
	return &StreamTextResult{
		log:              broadcast.New[provider.StreamEvent](),
		text:             future.New[string](),
		usage:            future.New[provider.Usage](),
		totalUsage:       future.New[provider.Usage](),
		finishReason:     future.New[provider.FinishReason](),
		providerMetadata: future.New[gjson.Result](),
		request:          future.New[provider.RequestMetadata](),
		response:         future.New[provider.ResponseInfo](),
		toolCalls:        future.New[[]provider.ToolCall](),
		toolResults:      future.New[[]provider.ToolResult](),
		warnings:         future.New[[]provider.Warning](),
		steps:            future.New[[]StepResult](),
	}
}

func (r *StreamTextResult) pump(ctx context.Context, model provider.LanguageModel, s *CallSettings, prompt []provider.Message) {
	defer r.log.Close()

	logger := s.Logger.With(slogx.LoggerName("weft"), slog.String("model", provider.ID(model)))
	ctx, span := s.Telemetry.Start(ctx, "ai.streamText", modelAttributes(s, model, prompt)...)
	defer span.End()

	var steps []StepResult
	messages := prompt
	for i := 0; ; i++ {
		step, err := r.step(ctx, model, s, messages, i)
		if err != nil {
			logger.Debug("stream failed", slog.Int("step", i), slogx.Error(err))
			span.RecordError(err)
			s.emitError(err)
			r.reject(err)
			return
		}
		steps = append(steps, step)
		if s.OnStepFinish != nil {
			s.OnStepFinish(step)
		}
		if !step.IsContinued {
			break
		}
		messages = append(messages, step.responseMessages()...)
	}

	last := steps[len(steps)-1]
	total := totalUsage(steps)
	r.log.Append(provider.Finish{FinishReason: last.FinishReason, Usage: total, ProviderMetadata: last.ProviderMetadata})

	span.SetAttributes(s.Telemetry.Outputs(
		telemetry.Attr("ai.response.text", last.Text),
		telemetry.Attr("ai.response.toolCalls", last.ToolCalls),
	)...)
	span.SetAttributes(finishAttributes(last.FinishReason, total)...)
	logger.Debug("stream finished", slog.Int("steps", len(steps)), slog.String("finish_reason", string(last.FinishReason)))

	r.resolve(last, total, steps)
	if s.OnFinish != nil {
		s.OnFinish(FinishEvent{StepResult: last, TotalUsage: total, Steps: steps})
	}
}

// step runs one model round trip and appends its events to the log. A
// returned error has already been appended as an Error event.
func (r *StreamTextResult) step(ctx context.Context, model provider.LanguageModel, s *CallSettings, messages []provider.Message, index int) (StepResult, error) {
	ctx, span := s.Telemetry.Start(ctx, "ai.streamText.doStream", telemetry.Attr("ai.step", index))
	defer span.End()

	resp, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.StreamResponse, error) {
		return model.Stream(ctx, s.callOptions(messages))
	})
	if err != nil {
		span.RecordError(err)
		r.log.Append(provider.Error{Err: err})
		return StepResult{}, err
	}
	r.log.Append(provider.StepStart{MessageID: uuidx.Prefixed("msg"), Warnings: resp.Warnings})

	coord := toolexec.New(toolexec.Config{
		Tools:         s.Tools,
		Repair:        s.Repair,
		Messages:      messages,
		OnPreliminary: s.OnPreliminaryToolResult,
		Logger:        s.Logger,
	})

	res := StepResult{
		FinishReason: provider.FinishReasonUnknown,
		Warnings:     resp.Warnings,
		Request:      resp.Request,
		Response:     resp.Response,
	}
	var (
		text    strings.Builder
		failure error
	)
	for ev := range coord.Merge(ctx, resp.Stream) {
		switch ev := ev.(type) {
		case provider.TextDelta:
			text.WriteString(ev.Text)
		case provider.ToolCall:
			res.ToolCalls = append(res.ToolCalls, ev)
		case provider.ToolResult:
			res.ToolResults = append(res.ToolResults, ev)
		case provider.ResponseMetadata:
			res.Response.ID = ev.ID
			res.Response.Timestamp = ev.Timestamp
			res.Response.ModelID = ev.ModelID
		case provider.Finish:
			res.FinishReason = ev.FinishReason
			res.Usage = ev.Usage
			res.ProviderMetadata = ev.ProviderMetadata
			continue
		case provider.Error:
			// an unknown tool does not end the step
			if failure == nil && !IsNoSuchTool(ev.Err) {
				failure = ev.Err
			}
		}
		if s.OnChunk != nil && isChunk(ev) {
			s.OnChunk(ev)
		}
		r.log.Append(ev)
	}
	if failure != nil {
		span.RecordError(failure)
		return StepResult{}, failure
	}

	res.Text = text.String()
	res.IsContinued = res.continues(index, s.MaxSteps)
	span.SetAttributes(finishAttributes(res.FinishReason, res.Usage)...)
	r.log.Append(provider.StepFinish{
		FinishReason:     res.FinishReason,
		Usage:            res.Usage,
		ResponseID:       res.Response.ID,
		ModelID:          res.Response.ModelID,
		IsContinued:      res.IsContinued,
		ProviderMetadata: res.ProviderMetadata,
	})
	return res, nil
}

func (r *StreamTextResult) fail(err error) {
	r.log.Append(provider.Error{Err: err})
	r.reject(err)
	r.log.Close()
}

func (r *StreamTextResult) resolve(last StepResult, total provider.Usage, steps []StepResult) {
	r.text.Complete(last.Text)
	r.usage.Complete(last.Usage)
	r.totalUsage.Complete(total)
	r.finishReason.Complete(last.FinishReason)
	r.providerMetadata.Complete(last.ProviderMetadata)
	r.request.Complete(last.Request)
	r.response.Complete(last.Response)
	r.toolCalls.Complete(last.ToolCalls)
	r.toolResults.Complete(last.ToolResults)
	r.warnings.Complete(last.Warnings)
	r.steps.Complete(steps)
}

func (r *StreamTextResult) reject(err error) {
	r.text.Error(err)
	r.usage.Error(err)
	r.totalUsage.Error(err)
	r.finishReason.Error(err)
	r.providerMetadata.Error(err)
	r.request.Error(err)
	r.response.Error(err)
	r.toolCalls.Error(err)
	r.toolResults.Error(err)
	r.warnings.Error(err)
	r.steps.Error(err)
}

// FullStream yields every event of the call, from the first.
func (r *StreamTextResult) FullStream() iter.Seq[provider.StreamEvent] {
	return r.log.Seq()
}

// FullStreamContext is like FullStream but stops early when ctx is done.
func (r *StreamTextResult) FullStreamContext(ctx context.Context) iter.Seq[provider.StreamEvent] {
	return r.log.SeqContext(ctx)
}

// TextStream yields the non-empty text deltas of the call.
func (r *StreamTextResult) TextStream() iter.Seq[string] {
	return textDeltas(r.log.Seq())
}

// Consume reads the call to its end and returns its error, if any.
func (r *StreamTextResult) Consume(ctx context.Context) error {
	for range r.log.SeqContext(ctx) {
	}
	_, err := r.finishReason.Get(ctx)
	return err
}

// Text is the text generated in the last step.
func (r *StreamTextResult) Text(ctx context.Context) (string, error) { return r.text.Get(ctx) }

// Usage is the token usage of the last step.
func (r *StreamTextResult) Usage(ctx context.Context) (provider.Usage, error) {
	return r.usage.Get(ctx)
}

// TotalUsage sums the token usage of all steps.
func (r *StreamTextResult) TotalUsage(ctx context.Context) (provider.Usage, error) {
	return r.totalUsage.Get(ctx)
}

func (r *StreamTextResult) FinishReason(ctx context.Context) (provider.FinishReason, error) {
	return r.finishReason.Get(ctx)
}

func (r *StreamTextResult) ProviderMetadata(ctx context.Context) (gjson.Result, error) {
	return r.providerMetadata.Get(ctx)
}

func (r *StreamTextResult) Request(ctx context.Context) (provider.RequestMetadata, error) {
	return r.request.Get(ctx)
}

func (r *StreamTextResult) Response(ctx context.Context) (provider.ResponseInfo, error) {
	return r.response.Get(ctx)
}

// ToolCalls are the tool calls of the last step.
func (r *StreamTextResult) ToolCalls(ctx context.Context) ([]provider.ToolCall, error) {
	return r.toolCalls.Get(ctx)
}

// ToolResults are the final tool results of the last step.
func (r *StreamTextResult) ToolResults(ctx context.Context) ([]provider.ToolResult, error) {
	return r.toolResults.Get(ctx)
}

func (r *StreamTextResult) Warnings(ctx context.Context) ([]provider.Warning, error) {
	return r.warnings.Get(ctx)
}

func (r *StreamTextResult) Steps(ctx context.Context) ([]StepResult, error) {
	return r.steps.Get(ctx)
}

// ResponseMessages are the assistant and tool messages produced by all steps,
// ready to be appended to the conversation.
func (r *StreamTextResult) ResponseMessages(ctx context.Context) ([]provider.Message, error) {
	steps, err := r.steps.Get(ctx)
	if err != nil {
		return nil, err
	}
	var msgs []provider.Message
	for _, step := range steps {
		msgs = append(msgs, step.responseMessages()...)
	}
	return msgs, nil
}

func textDeltas(events iter.Seq[provider.StreamEvent]) iter.Seq[string] {
	return func(yield func(string) bool) {
		for ev := range events {
			d, ok := ev.(provider.TextDelta)
			if !ok || d.Text == "" {
				continue
			}
			if !yield(d.Text) {
				return
			}
		}
	}
}

func isChunk(ev provider.StreamEvent) bool {
	switch ev.(type) {
	case provider.TextDelta, provider.ToolCall, provider.ToolCallDelta, provider.ToolResult:
		return true
	default:
		return false
	}
}

func modelAttributes(s *CallSettings, model provider.Model, prompt []provider.Message) []telemetry.Attribute {
	attrs := []telemetry.Attribute{
		telemetry.Attr("ai.model.provider", model.Provider()),
		telemetry.Attr("ai.model.id", model.ModelID()),
		telemetry.Attr("ai.settings.maxRetries", s.MaxRetries),
	}
	if len(prompt) > 0 {
		attrs = append(attrs, s.Telemetry.Inputs(telemetry.Attr("ai.prompt.messages", promptText(prompt)))...)
	}
	return attrs
}

func finishAttributes(reason provider.FinishReason, usage provider.Usage) []telemetry.Attribute {
	return []telemetry.Attribute{
		telemetry.Attr("ai.response.finishReason", string(reason)),
		telemetry.Attr("ai.usage.inputTokens", usage.InputTokens),
		telemetry.Attr("ai.usage.outputTokens", usage.OutputTokens),
		telemetry.Attr("ai.usage.totalTokens", usage.TotalTokens),
	}
}

func promptText(msgs []provider.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ": " + m.Text()
	}
	return out
}
