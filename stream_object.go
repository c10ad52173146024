package weft

import (
	"context"
	"iter"
	"log/slog"
	"reflect"
	"strings"

	"github.com/casualjim/weft/internal/broadcast"
	"github.com/casualjim/weft/internal/objstream"
	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/internal/toolexec"
	"github.com/casualjim/weft/pkg/future"
	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/casualjim/weft/telemetry"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
)

// OutputMode selects the shape of a structured output.
type OutputMode = objstream.OutputType

const (
	// OutputObject generates one object matching the schema.
	OutputObject = objstream.OutputObject
	// OutputArray generates a list whose elements match the schema.
	OutputArray = objstream.OutputArray
	// OutputEnum picks one of the values given with WithEnum.
	OutputEnum = objstream.OutputEnum
	// OutputNoSchema accepts any JSON value.
	OutputNoSchema = objstream.OutputNoSchema
)

// WithOutput selects the output mode of a structured output call.
var WithOutput = opts.ForName[CallSettings, OutputMode]("Output")

// WithEnum switches to enum output with the given values.
func WithEnum(values ...string) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.Output = OutputEnum
		s.EnumValues = values
		return nil
	})
}

// strategyFor builds the output strategy for a call producing T. Without an
// explicit schema, object mode reflects T and array mode reflects the element
// type of T.
func strategyFor[T any](s *CallSettings) (objstream.Strategy, error) {
	typ := reflect.TypeFor[T]()
	switch s.Output {
	case OutputObject, "":
		if s.Schema != nil {
			return objstream.Object(s.Schema), nil
		}
		if typ.Kind() == reflect.Interface {
			return nil, provider.ErrNoOutputSpecified
		}
		return objstream.Object(schema.For[T]()), nil

	case OutputArray:
		if s.Schema != nil {
			return objstream.Array(s.Schema), nil
		}
		if typ.Kind() != reflect.Slice || typ.Elem().Kind() == reflect.Interface {
			return nil, provider.ErrNoOutputSpecified
		}
		return objstream.Array(schema.FromSchema(schema.ReflectType(typ.Elem()))), nil

	case OutputEnum:
		if len(s.EnumValues) == 0 {
			return nil, &provider.InvalidArgumentError{Argument: "enum", Message: "enum values are required"}
		}
		return objstream.Enum(s.EnumValues...), nil

	case OutputNoSchema:
		return objstream.NoSchema(), nil

	default:
		return nil, &provider.InvalidArgumentError{Argument: "output", Message: "unknown output mode " + string(s.Output)}
	}
}

func responseFormat(s *CallSettings, strategy objstream.Strategy) *provider.ResponseFormat {
	return &provider.ResponseFormat{
		Type:        provider.ResponseFormatJSON,
		Schema:      strategy.JSONSchema(),
		Name:        s.SchemaName,
		Description: s.SchemaDescription,
	}
}

func convert[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	out, err := schema.Convert[T](v)
	if err != nil {
		return out, &provider.TypeValidationError{Value: v, Cause: err}
	}
	return out, nil
}

// StreamObjectResult is the handle of a running structured output stream.
// Like StreamTextResult, the provider is called once and every view replays
// the call from its first event.
type StreamObjectResult[T any] struct {
	log *broadcast.Log[provider.StreamEvent]

	object           future.CompletableFuture[T]
	usage            future.CompletableFuture[provider.Usage]
	finishReason     future.CompletableFuture[provider.FinishReason]
	providerMetadata future.CompletableFuture[gjson.Result]
	request          future.CompletableFuture[provider.RequestMetadata]
	response         future.CompletableFuture[provider.ResponseInfo]
	warnings         future.CompletableFuture[[]provider.Warning]
}

// StreamObject streams a structured output decoded into T. The output mode
// defaults to OutputObject with a schema reflected from T.
//
// Partial values are published as ObjectDelta events whenever they change.
// A final value that fails validation rejects only Object, with a
// *NoObjectGeneratedError; the other deferred results still resolve.
func StreamObject[T any](ctx context.Context, model provider.LanguageModel, options ...CallOption) *StreamObjectResult[T] {
	r := newStreamObjectResult[T]()

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
		r.fail(err)
		return r
	}

	go r.pump(ctx, model, &s, prompt, strategy)
	return r
}

// StreamArray streams a list of E. ElementStream yields each element once it
// is complete.
func StreamArray[E any](ctx context.Context, model provider.LanguageModel, options ...CallOption) *StreamObjectResult[[]E] {
	return StreamObject[[]E](ctx, model, append(options, WithOutput(OutputArray))...)
}

// StreamEnum streams a choice among values.
func StreamEnum(ctx context.Context, model provider.LanguageModel, values []string, options ...CallOption) *StreamObjectResult[string] {
	return StreamObject[string](ctx, model, append(options, WithEnum(values...))...)
}

// StreamJSON streams any JSON value without validation.
func StreamJSON(ctx context.Context, model provider.LanguageModel, options ...CallOption) *StreamObjectResult[any] {
	return StreamObject[any](ctx, model, append(options, WithOutput(OutputNoSchema))...)
}

func newStreamObjectResult[T any]() *StreamObjectResult[T] {
	return &StreamObjectResult[T]{
		log:              broadcast.New[provider.StreamEvent](),
		object:           future.New[T](),
		usage:            future.New[provider.Usage](),
		finishReason:     future.New[provider.FinishReason](),
		providerMetadata: future.New[gjson.Result](),
		request:          future.New[provider.RequestMetadata](),
		response:         future.New[provider.ResponseInfo](),
		warnings:         future.New[[]provider.Warning](),
	}
}

func (r *StreamObjectResult[T]) pump(ctx context.Context, model provider.LanguageModel, s *CallSettings, prompt []provider.Message, strategy objstream.Strategy) {
	defer r.log.Close()

	logger := s.Logger.With(slogx.LoggerName("weft"), slog.String("model", provider.ID(model)))
	attrs := append(modelAttributes(s, model, prompt), telemetry.Attr("ai.schema.output", string(strategy.Type())))
	ctx, span := s.Telemetry.Start(ctx, "ai.streamObject", attrs...)
	defer span.End()

	co := s.callOptions(prompt)
	co.Tools, co.ToolChoice = nil, provider.ToolChoice{}
	co.ResponseFormat = responseFormat(s, strategy)

	resp, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.StreamResponse, error) {
		return model.Stream(ctx, co)
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		r.fail(err)
		return
	}

	var (
		sink     = future.New[any]()
		info     = resp.Response
		finish   *provider.Finish
		failure  error
		rawText  strings.Builder
		passthru = toolexec.New(toolexec.Config{Logger: s.Logger})
	)
	for ev := range objstream.Accumulate(passthru.Merge(ctx, resp.Stream), strategy, sink) {
		switch ev := ev.(type) {
		case provider.TextDelta:
			rawText.WriteString(ev.Text)
		case provider.ResponseMetadata:
			info.ID, info.Timestamp, info.ModelID = ev.ID, ev.Timestamp, ev.ModelID
		case provider.Finish:
			finish = &ev
		case provider.Error:
			if failure == nil {
				failure = ev.Err
			}
		}
		if s.OnChunk != nil && isChunk(ev) {
			s.OnChunk(ev)
		}
		r.log.Append(ev)
	}

	if failure != nil {
		logger.Debug("object stream failed", slogx.Error(failure))
		span.RecordError(failure)
		s.emitError(failure)
		r.reject(failure)
		return
	}

	if finish == nil {
		finish = &provider.Finish{FinishReason: provider.FinishReasonUnknown}
	}
	r.usage.Complete(finish.Usage)
	r.finishReason.Complete(finish.FinishReason)
	r.providerMetadata.Complete(finish.ProviderMetadata)
	r.request.Complete(resp.Request)
	r.response.Complete(info)
	r.warnings.Complete(resp.Warnings)
	span.SetAttributes(finishAttributes(finish.FinishReason, finish.Usage)...)

	value, err := sink.Get(context.Background())
	if err == nil {
		var obj T
		if obj, err = convert[T](value); err == nil {
			r.object.Complete(obj)
			span.SetAttributes(s.Telemetry.Outputs(telemetry.Attr("ai.response.object", value))...)
		} else {
			err = &provider.NoObjectGeneratedError{
				Text:         rawText.String(),
				Response:     info,
				Usage:        finish.Usage,
				FinishReason: finish.FinishReason,
				Cause:        err,
			}
		}
	}
	if err != nil {
		logger.Debug("no object generated", slogx.Error(err))
		span.RecordError(err)
		r.object.Error(err)
	}

	if s.OnFinish != nil {
		s.OnFinish(FinishEvent{
			StepResult: StepResult{
				Text:             rawText.String(),
				FinishReason:     finish.FinishReason,
				Usage:            finish.Usage,
				Warnings:         resp.Warnings,
				Request:          resp.Request,
				Response:         info,
				ProviderMetadata: finish.ProviderMetadata,
			},
			TotalUsage: finish.Usage,
		})
	}
}

func (r *StreamObjectResult[T]) fail(err error) {
	r.log.Append(provider.Error{Err: err})
	r.reject(err)
	r.log.Close()
}

func (r *StreamObjectResult[T]) reject(err error) {
	r.object.Error(err)
	r.usage.Error(err)
	r.finishReason.Error(err)
	r.providerMetadata.Error(err)
	r.request.Error(err)
	r.response.Error(err)
	r.warnings.Error(err)
}

// FullStream yields every event of the call, from the first.
func (r *StreamObjectResult[T]) FullStream() iter.Seq[provider.StreamEvent] {
	return r.log.Seq()
}

// FullStreamContext is like FullStream but stops early when ctx is done.
func (r *StreamObjectResult[T]) FullStreamContext(ctx context.Context) iter.Seq[provider.StreamEvent] {
	return r.log.SeqContext(ctx)
}

// TextStream yields the raw JSON text, in chunks that each changed the
// partial value.
func (r *StreamObjectResult[T]) TextStream() iter.Seq[string] {
	return textDeltas(r.log.Seq())
}

// PartialObjectStream yields every distinct partial value. Objects are
// map[string]any, arrays []any and enums string.
func (r *StreamObjectResult[T]) PartialObjectStream() iter.Seq[any] {
	return func(yield func(any) bool) {
		for ev := range r.log.Seq() {
			if d, ok := ev.(provider.ObjectDelta); ok {
				if !yield(d.Object) {
					return
				}
			}
		}
	}
}

// ElementStream yields the elements of an array output as they complete.
// It yields nothing for other output modes.
func (r *StreamObjectResult[T]) ElementStream() iter.Seq[any] {
	return func(yield func(any) bool) {
		published := 0
		for ev := range r.log.Seq() {
			d, ok := ev.(provider.ObjectDelta)
			if !ok {
				continue
			}
			elems, ok := d.Object.([]any)
			if !ok {
				continue
			}
			for ; published < len(elems); published++ {
				if !yield(elems[published]) {
					return
				}
			}
		}
	}
}

// Consume reads the call to its end and returns the stream error, if any.
// Object validation failures are only reported by Object.
func (r *StreamObjectResult[T]) Consume(ctx context.Context) error {
	for range r.log.SeqContext(ctx) {
	}
	_, err := r.finishReason.Get(ctx)
	return err
}

// Object is the validated final value.
func (r *StreamObjectResult[T]) Object(ctx context.Context) (T, error) { return r.object.Get(ctx) }

func (r *StreamObjectResult[T]) Usage(ctx context.Context) (provider.Usage, error) {
	return r.usage.Get(ctx)
}

func (r *StreamObjectResult[T]) FinishReason(ctx context.Context) (provider.FinishReason, error) {
	return r.finishReason.Get(ctx)
}

func (r *StreamObjectResult[T]) ProviderMetadata(ctx context.Context) (gjson.Result, error) {
	return r.providerMetadata.Get(ctx)
}

func (r *StreamObjectResult[T]) Request(ctx context.Context) (provider.RequestMetadata, error) {
	return r.request.Get(ctx)
}

func (r *StreamObjectResult[T]) Response(ctx context.Context) (provider.ResponseInfo, error) {
	return r.response.Get(ctx)
}

func (r *StreamObjectResult[T]) Warnings(ctx context.Context) ([]provider.Warning, error) {
	return r.warnings.Get(ctx)
}
