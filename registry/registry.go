// Package registry resolves models from "provider:model" identifiers.
//
//	reg := registry.New()
//	reg.Register("openai", openai.New(option.WithAPIKey(key)))
//	model, err := reg.LanguageModel("openai:gpt-4o-mini")
package registry

import (
	"strings"

	"github.com/casualjim/weft/internal/registry"
	"github.com/casualjim/weft/provider"
)

// Separator splits the provider name from the model id.
const Separator = ":"

// Provider creates models by id. Providers that do not serve a kind of model
// return a *provider.NoSuchModelError.
type Provider interface {
	LanguageModel(modelID string) (provider.LanguageModel, error)
	EmbeddingModel(modelID string) (provider.EmbeddingModel, error)
}

// ImageProvider is implemented by providers that serve image models.
type ImageProvider interface {
	ImageModel(modelID string) (provider.ImageModel, error)
}

// Registry maps provider names to providers.
type Registry struct {
	providers registry.Registry[Provider]
}

func New() *Registry {
	return &Registry{providers: registry.New[Provider]()}
}

// Default is the process wide registry used by the package level functions.
var Default = New()

// Register adds or replaces a provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.providers.Add(name, p)
}

func (r *Registry) Unregister(name string) {
	r.providers.Del(name)
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []string {
	return r.providers.Names()
}

func (r *Registry) LanguageModel(id string) (provider.LanguageModel, error) {
	p, modelID, err := r.resolve(id, "language")
	if err != nil {
		return nil, err
	}
	return p.LanguageModel(modelID)
}

func (r *Registry) EmbeddingModel(id string) (provider.EmbeddingModel, error) {
	p, modelID, err := r.resolve(id, "embedding")
	if err != nil {
		return nil, err
	}
	return p.EmbeddingModel(modelID)
}

func (r *Registry) ImageModel(id string) (provider.ImageModel, error) {
	p, modelID, err := r.resolve(id, "image")
	if err != nil {
		return nil, err
	}
	ip, ok := p.(ImageProvider)
	if !ok {
		return nil, &provider.NoSuchModelError{ModelID: id, ModelType: "image"}
	}
	return ip.ImageModel(modelID)
}

func (r *Registry) resolve(id, kind string) (Provider, string, error) {
	name, modelID, ok := strings.Cut(id, Separator)
	if !ok || name == "" || modelID == "" {
		return nil, "", &provider.NoSuchModelError{ModelID: id, ModelType: kind}
	}
	p, found := r.providers.Get(name)
	if !found {
		return nil, "", &provider.NoSuchProviderError{ProviderID: name, AvailableProviders: r.Providers()}
	}
	return p, modelID, nil
}

func Register(name string, p Provider) { Default.Register(name, p) }

func LanguageModel(id string) (provider.LanguageModel, error) { return Default.LanguageModel(id) }

func EmbeddingModel(id string) (provider.EmbeddingModel, error) { return Default.EmbeddingModel(id) }
