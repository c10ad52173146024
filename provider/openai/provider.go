package openai

import (
	"github.com/casualjim/weft/internal/registry"
	"github.com/casualjim/weft/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Name is the provider name used in model ids and provider options.
const Name = "openai"

const (
	ChatModelGPT4o     = openai.ChatModelGPT4o
	ChatModelGPT4oMini = openai.ChatModelGPT4oMini
	ChatModelO1        = openai.ChatModelO1
	ChatModelO1Mini    = openai.ChatModelO1Mini

	EmbeddingModelTextEmbedding3Small = openai.EmbeddingModelTextEmbedding3Small
	EmbeddingModelTextEmbedding3Large = openai.EmbeddingModelTextEmbedding3Large
)

// Provider creates OpenAI models that share one client.
type Provider struct {
	client     *openai.Client
	chats      registry.Registry[*ChatModel]
	embeddings registry.Registry[*EmbeddingModel]
}

// New creates a provider. The options are passed to the openai-go client.
func New(options ...option.RequestOption) *Provider {
	options = append([]option.RequestOption{option.WithMaxRetries(0)}, options...)
	return &Provider{
		client:     openai.NewClient(options...),
		chats:      registry.New[*ChatModel](),
		embeddings: registry.New[*EmbeddingModel](),
	}
}

// Chat returns the chat model with the given id.
func (p *Provider) Chat(modelID string) *ChatModel {
	m, _ := p.chats.GetOrAdd(modelID, func() *ChatModel {
		return &ChatModel{id: modelID, client: p.client}
	})
	return m
}

// Embedding returns the embedding model with the given id.
func (p *Provider) Embedding(modelID string) *EmbeddingModel {
	m, _ := p.embeddings.GetOrAdd(modelID, func() *EmbeddingModel {
		return &EmbeddingModel{id: modelID, client: p.client}
	})
	return m
}

func (p *Provider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if modelID == "" {
		return nil, &provider.NoSuchModelError{ModelID: modelID, ModelType: "language"}
	}
	return p.Chat(modelID), nil
}

func (p *Provider) EmbeddingModel(modelID string) (provider.EmbeddingModel, error) {
	if modelID == "" {
		return nil, &provider.NoSuchModelError{ModelID: modelID, ModelType: "embedding"}
	}
	return p.Embedding(modelID), nil
}

func (p *Provider) GPT4oMini() *ChatModel { return p.Chat(ChatModelGPT4oMini) }

func (p *Provider) GPT4o() *ChatModel { return p.Chat(ChatModelGPT4o) }

func (p *Provider) O1Mini() *ChatModel { return p.Chat(ChatModelO1Mini) }

func (p *Provider) O1() *ChatModel { return p.Chat(ChatModelO1) }
