package mock

import "github.com/casualjim/weft/provider"

// Provider serves the models it was built with, keyed by model id.
type Provider struct {
	Languages  map[string]provider.LanguageModel
	Embeddings map[string]provider.EmbeddingModel
	Images     map[string]provider.ImageModel
}

func (p *Provider) LanguageModel(modelID string) (provider.LanguageModel, error) {
	if m, ok := p.Languages[modelID]; ok {
		return m, nil
	}
	return nil, &provider.NoSuchModelError{ModelID: modelID, ModelType: "language"}
}

func (p *Provider) EmbeddingModel(modelID string) (provider.EmbeddingModel, error) {
	if m, ok := p.Embeddings[modelID]; ok {
		return m, nil
	}
	return nil, &provider.NoSuchModelError{ModelID: modelID, ModelType: "embedding"}
}

func (p *Provider) ImageModel(modelID string) (provider.ImageModel, error) {
	if m, ok := p.Images[modelID]; ok {
		return m, nil
	}
	return nil, &provider.NoSuchModelError{ModelID: modelID, ModelType: "image"}
}
