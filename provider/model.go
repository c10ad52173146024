package provider

import (
	"context"
	"fmt"
)

// SpecificationV2 is the only model contract version this module dispatches to.
const SpecificationV2 = "v2"

// Model is the part of the contract every model kind shares.
type Model interface {
	// SpecificationVersion names the contract revision the model implements.
	SpecificationVersion() string
	// Provider is the provider name, e.g. "openai".
	Provider() string
	// ModelID is the provider specific model identifier.
	ModelID() string
}

// LanguageModel generates text, tool calls and structured output.
type LanguageModel interface {
	Model
	Generate(ctx context.Context, opts CallOptions) (*GenerateResult, error)
	// Stream starts a streaming call. The returned channel is closed by the
	// model after the terminal Finish or Error event.
	Stream(ctx context.Context, opts CallOptions) (*StreamResponse, error)
}

// EmbeddingModel turns text values into vectors.
type EmbeddingModel interface {
	Model
	// MaxEmbeddingsPerCall is the largest batch accepted by Embed, 0 for no limit.
	MaxEmbeddingsPerCall() int
	SupportsParallelCalls() bool
	Embed(ctx context.Context, opts EmbedOptions) (*EmbedResult, error)
}

type ImageModel interface {
	Model
	// MaxImagesPerCall is the largest N accepted by Generate, 0 for no limit.
	MaxImagesPerCall() int
	Generate(ctx context.Context, opts ImageOptions) (*ImageResult, error)
}

type SpeechModel interface {
	Model
	Generate(ctx context.Context, opts SpeechOptions) (*SpeechResult, error)
}

type TranscriptionModel interface {
	Model
	Transcribe(ctx context.Context, opts TranscriptionOptions) (*TranscriptionResult, error)
}

type RerankingModel interface {
	Model
	Rerank(ctx context.Context, opts RerankOptions) (*RerankResult, error)
}

type VideoModel interface {
	Model
	Generate(ctx context.Context, opts VideoOptions) (*VideoResult, error)
}

// Check dispatches on the model's specification version and rejects the
// versions this module does not know how to drive.
func Check(m Model) error {
	if m == nil {
		return &InvalidArgumentError{Argument: "model", Message: "model is required"}
	}
	switch v := m.SpecificationVersion(); v {
	case SpecificationV2:
		return nil
	default:
		return &UnsupportedModelVersionError{
			Version:  v,
			Provider: m.Provider(),
			ModelID:  m.ModelID(),
		}
	}
}

// ID formats a model as "provider:model".
func ID(m Model) string {
	return fmt.Sprintf("%s:%s", m.Provider(), m.ModelID())
}
