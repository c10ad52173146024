package weft

import (
	"errors"
	"log/slog"
	"time"

	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/internal/toolexec"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/casualjim/weft/telemetry"
	"github.com/casualjim/weft/tool"
	"github.com/fogfish/opts"
)

// RepairRequest and RepairFunc configure tool call repair.
type (
	RepairRequest = toolexec.RepairRequest
	RepairFunc    = toolexec.RepairFunc
)

// CallSettings collects everything a call can be configured with. Each call
// reads the settings that apply to it and ignores the rest.
type CallSettings struct {
	System   string
	Prompt   string
	Messages []provider.Message

	MaxOutputTokens  int64
	Temperature      *float64
	TopP             *float64
	TopK             *int64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Seed             *int64
	StopSequences    []string
	Headers          map[string]string
	ProviderOptions  map[string]map[string]any

	MaxRetries int
	RetryDelay time.Duration
	MaxSteps   int

	Tools       tool.Set
	ActiveTools []string
	ToolChoice  provider.ToolChoice
	Repair      RepairFunc

	Schema            schema.Schema
	SchemaName        string
	SchemaDescription string
	Output            OutputMode
	EnumValues        []string

	MaxParallelCalls int
	N                int
	Size             string
	AspectRatio      string
	Voice            string
	OutputFormat     string
	Instructions     string
	Speed            *float64
	DurationSeconds  float64
	TopN             int

	Telemetry telemetry.Settings
	Logger    *slog.Logger

	OnChunk                 func(provider.StreamEvent)
	OnStepFinish            func(StepResult)
	OnFinish                func(FinishEvent)
	OnError                 func(error)
	OnPreliminaryToolResult func(provider.ToolResult)
}

// CallOption configures a call.
type CallOption = opts.Option[CallSettings]

func defaultSettings() CallSettings {
	return CallSettings{
		MaxRetries: retry.DefaultMaxRetries,
		RetryDelay: retry.DefaultInitialInterval,
		MaxSteps:   1,
		Output:     OutputObject,
	}
}

func newSettings(options []CallOption) (CallSettings, error) {
	s := defaultSettings()
	if err := opts.Apply(&s, options); err != nil {
		return s, err
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s, s.validate()
}

func (s *CallSettings) validate() error {
	var errs []error
	if s.MaxOutputTokens < 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "maxOutputTokens", Message: "must be >= 0"})
	}
	if s.MaxRetries < 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "maxRetries", Message: "must be >= 0"})
	}
	if s.MaxSteps < 1 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "maxSteps", Message: "must be >= 1"})
	}
	if s.MaxParallelCalls < 0 {
		errs = append(errs, &provider.InvalidArgumentError{Argument: "maxParallelCalls", Message: "must be >= 0"})
	}
	return errors.Join(errs...)
}

func (s *CallSettings) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:         s.MaxRetries,
		InitialInterval:    s.RetryDelay,
		BackoffCoefficient: retry.DefaultBackoffCoefficient,
		Logger:             s.Logger,
	}
}

// prompt standardizes System, Prompt and Messages into one message list.
func (s *CallSettings) prompt() ([]provider.Message, error) {
	switch {
	case s.Prompt != "" && len(s.Messages) > 0:
		return nil, &provider.InvalidArgumentError{Argument: "prompt", Message: "prompt and messages cannot be defined at the same time"}
	case s.Prompt == "" && len(s.Messages) == 0:
		return nil, &provider.InvalidArgumentError{Argument: "prompt", Message: "prompt or messages must be defined"}
	}

	var msgs []provider.Message
	if s.System != "" {
		msgs = append(msgs, provider.SystemMessage(s.System))
	}
	if s.Prompt != "" {
		return append(msgs, provider.UserMessage(s.Prompt)), nil
	}
	return append(msgs, s.Messages...), nil
}

func (s *CallSettings) callOptions(prompt []provider.Message) provider.CallOptions {
	co := provider.CallOptions{
		Prompt:           prompt,
		MaxOutputTokens:  s.MaxOutputTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		Seed:             s.Seed,
		StopSequences:    s.StopSequences,
		Headers:          s.Headers,
		ProviderOptions:  s.ProviderOptions,
	}
	if len(s.Tools) > 0 {
		co.Tools = s.Tools.FunctionTools(s.ActiveTools...)
		co.ToolChoice = s.ToolChoice
	}
	return co
}

func (s *CallSettings) emitError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// WithSystem sets the system message.
var WithSystem = opts.ForName[CallSettings, string]("System")

// WithPrompt sets a single user message as the prompt.
var WithPrompt = opts.ForName[CallSettings, string]("Prompt")

// WithMessages sets the conversation sent to the model.
func WithMessages(msgs ...provider.Message) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.Messages = append(s.Messages, msgs...)
		return nil
	})
}

// WithMaxOutputTokens limits the number of generated tokens.
var WithMaxOutputTokens = opts.ForName[CallSettings, int64]("MaxOutputTokens")

func WithTemperature(t float64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.Temperature = &t
		return nil
	})
}

func WithTopP(p float64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.TopP = &p
		return nil
	})
}

func WithTopK(k int64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.TopK = &k
		return nil
	})
}

func WithPresencePenalty(p float64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.PresencePenalty = &p
		return nil
	})
}

func WithFrequencyPenalty(p float64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.FrequencyPenalty = &p
		return nil
	})
}

func WithSeed(seed int64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.Seed = &seed
		return nil
	})
}

func WithStopSequences(stops ...string) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.StopSequences = stops
		return nil
	})
}

// WithHeaders adds HTTP headers to provider requests.
func WithHeaders(headers map[string]string) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		if s.Headers == nil {
			s.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			s.Headers[k] = v
		}
		return nil
	})
}

// WithProviderOptions passes provider specific settings, keyed by provider name.
func WithProviderOptions(providerName string, options map[string]any) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		if s.ProviderOptions == nil {
			s.ProviderOptions = make(map[string]map[string]any)
		}
		s.ProviderOptions[providerName] = options
		return nil
	})
}

// WithMaxRetries sets how often a failed provider call is retried. Zero
// disables retries.
var WithMaxRetries = opts.ForName[CallSettings, int]("MaxRetries")

// WithRetryDelay sets the delay before the first retry.
var WithRetryDelay = opts.ForName[CallSettings, time.Duration]("RetryDelay")

// WithMaxSteps allows the model to call tools and continue for up to n steps.
var WithMaxSteps = opts.ForName[CallSettings, int]("MaxSteps")

// WithTools makes tools available to the model.
func WithTools(defs ...tool.Definition) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		if s.Tools == nil {
			s.Tools = make(tool.Set, len(defs))
		}
		var errs []error
		for _, d := range defs {
			if err := d.Validate(); err != nil {
				errs = append(errs, err)
				continue
			}
			s.Tools[d.Name] = d
		}
		return errors.Join(errs...)
	})
}

// WithActiveTools limits the tools advertised to the model.
func WithActiveTools(names ...string) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.ActiveTools = names
		return nil
	})
}

// WithToolChoice controls whether the model must, may or must not call tools.
var WithToolChoice = opts.ForName[CallSettings, provider.ToolChoice]("ToolChoice")

// WithToolCallRepair installs a function that may fix invalid tool calls.
// Calls to it are serialized, even when the tools of a step run in parallel.
var WithToolCallRepair = opts.ForName[CallSettings, RepairFunc]("Repair")

// WithSchema sets the schema of a structured output.
func WithSchema(sch schema.Schema) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		if sch == nil {
			return &provider.InvalidArgumentError{Argument: "schema", Message: "schema must not be nil"}
		}
		s.Schema = sch
		return nil
	})
}

var (
	WithSchemaName        = opts.ForName[CallSettings, string]("SchemaName")
	WithSchemaDescription = opts.ForName[CallSettings, string]("SchemaDescription")
)

// WithMaxParallelCalls limits concurrent provider calls of EmbedMany.
var WithMaxParallelCalls = opts.ForName[CallSettings, int]("MaxParallelCalls")

// Media generation settings.
var (
	WithN               = opts.ForName[CallSettings, int]("N")
	WithSize            = opts.ForName[CallSettings, string]("Size")
	WithAspectRatio     = opts.ForName[CallSettings, string]("AspectRatio")
	WithVoice           = opts.ForName[CallSettings, string]("Voice")
	WithOutputFormat    = opts.ForName[CallSettings, string]("OutputFormat")
	WithInstructions    = opts.ForName[CallSettings, string]("Instructions")
	WithDurationSeconds = opts.ForName[CallSettings, float64]("DurationSeconds")
	WithTopN            = opts.ForName[CallSettings, int]("TopN")
)

func WithSpeed(speed float64) CallOption {
	return opts.Type[CallSettings](func(s *CallSettings) error {
		s.Speed = &speed
		return nil
	})
}

// WithTelemetry enables span recording for the call.
var WithTelemetry = opts.ForName[CallSettings, telemetry.Settings]("Telemetry")

// WithLogger sets the logger used for the call.
var WithLogger = opts.ForName[CallSettings, *slog.Logger]("Logger")

// Callbacks. They run on the goroutine that processes the stream and must
// not block. OnPreliminaryToolResult is never called concurrently with itself
// or with the repair function.
var (
	OnChunk                 = opts.ForName[CallSettings, func(provider.StreamEvent)]("OnChunk")
	OnStepFinish            = opts.ForName[CallSettings, func(StepResult)]("OnStepFinish")
	OnFinish                = opts.ForName[CallSettings, func(FinishEvent)]("OnFinish")
	OnError                 = opts.ForName[CallSettings, func(error)]("OnError")
	OnPreliminaryToolResult = opts.ForName[CallSettings, func(provider.ToolResult)]("OnPreliminaryToolResult")
)
