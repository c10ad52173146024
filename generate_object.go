package weft

import (
	"context"
	"log/slog"
	"strings"

	"github.com/casualjim/weft/internal/objstream"
	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// GenerateObjectResult is the outcome of GenerateObject.
type GenerateObjectResult[T any] struct {
	Object           T
	Text             string
	FinishReason     provider.FinishReason
	Usage            provider.Usage
	Warnings         []provider.Warning
	Request          provider.RequestMetadata
	Response         provider.ResponseInfo
	ProviderMetadata gjson.Result
}

// GenerateObject generates a structured output decoded into T and waits for
// it. Output modes and schemas work as for StreamObject. Text that is not
// valid JSON or does not match the schema fails the call with
// *NoObjectGeneratedError.
func GenerateObject[T any](ctx context.Context, model provider.LanguageModel, options ...CallOption) (*GenerateObjectResult[T], error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	var (
		prompt   []provider.Message
		strategy objstream.Strategy
	)
	if err == nil {
		prompt, err = s.prompt()
	}
	if err == nil {
		strategy, err = strategyFor[T](&s)
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	logger := s.Logger.With(slogx.LoggerName("weft"), slog.String("model", provider.ID(model)))
	attrs := append(modelAttributes(&s, model, prompt), telemetry.Attr("ai.schema.output", string(strategy.Type())))
	ctx, span := s.Telemetry.Start(ctx, "ai.generateObject", attrs...)
	defer span.End()

	co := s.callOptions(prompt)
	co.Tools, co.ToolChoice = nil, provider.ToolChoice{}
	co.ResponseFormat = responseFormat(&s, strategy)

	gen, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.GenerateResult, error) {
		return model.Generate(ctx, co)
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}
	span.SetAttributes(finishAttributes(gen.FinishReason, gen.Usage)...)

	noObject := func(cause error) error {
		err := &provider.NoObjectGeneratedError{
			Text:         gen.Text,
			Response:     gen.Response,
			Usage:        gen.Usage,
			FinishReason: gen.FinishReason,
			Cause:        cause,
		}
		logger.Debug("no object generated", slogx.Error(err))
		span.RecordError(err)
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(gen.Text)), &value); err != nil {
		return nil, noObject(err)
	}
	value, err = strategy.ValidateFinal(value)
	if err != nil {
		return nil, noObject(err)
	}
	obj, err := convert[T](value)
	if err != nil {
		return nil, noObject(err)
	}
	span.SetAttributes(s.Telemetry.Outputs(telemetry.Attr("ai.response.object", value))...)

	result := &GenerateObjectResult[T]{
		Object:           obj,
		Text:             gen.Text,
		FinishReason:     gen.FinishReason,
		Usage:            gen.Usage,
		Warnings:         gen.Warnings,
		Request:          gen.Request,
		Response:         gen.Response,
		ProviderMetadata: gen.ProviderMetadata,
	}
	if s.OnFinish != nil {
		s.OnFinish(FinishEvent{
			StepResult: StepResult{
				Text:             gen.Text,
				FinishReason:     gen.FinishReason,
				Usage:            gen.Usage,
				Warnings:         gen.Warnings,
				Request:          gen.Request,
				Response:         gen.Response,
				ProviderMetadata: gen.ProviderMetadata,
			},
			TotalUsage: gen.Usage,
		})
	}
	return result, nil
}

// GenerateArray generates a list of E.
func GenerateArray[E any](ctx context.Context, model provider.LanguageModel, options ...CallOption) (*GenerateObjectResult[[]E], error) {
	return GenerateObject[[]E](ctx, model, append(options, WithOutput(OutputArray))...)
}

// GenerateEnum generates a choice among values.
func GenerateEnum(ctx context.Context, model provider.LanguageModel, values []string, options ...CallOption) (*GenerateObjectResult[string], error) {
	return GenerateObject[string](ctx, model, append(options, WithEnum(values...))...)
}

// GenerateJSON generates any JSON value without validation.
func GenerateJSON(ctx context.Context, model provider.LanguageModel, options ...CallOption) (*GenerateObjectResult[any], error) {
	return GenerateObject[any](ctx, model, append(options, WithOutput(OutputNoSchema))...)
}
