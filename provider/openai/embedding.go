package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/casualjim/weft/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

var _ provider.EmbeddingModel = (*EmbeddingModel)(nil)

// EmbeddingModel drives the embeddings API.
type EmbeddingModel struct {
	id     string
	client *openai.Client
}

func (m *EmbeddingModel) SpecificationVersion() string { return provider.SpecificationV2 }
func (m *EmbeddingModel) Provider() string             { return Name }
func (m *EmbeddingModel) ModelID() string              { return m.id }
func (m *EmbeddingModel) MaxEmbeddingsPerCall() int    { return 2048 }
func (m *EmbeddingModel) SupportsParallelCalls() bool  { return true }

func (m *EmbeddingModel) Embed(ctx context.Context, opts provider.EmbedOptions) (*provider.EmbedResult, error) {
	if n := len(opts.Values); n > m.MaxEmbeddingsPerCall() {
		return nil, &provider.InvalidArgumentError{
			Argument: "values",
			Message:  fmt.Sprintf("%d values exceed the limit of %d per call", n, m.MaxEmbeddingsPerCall()),
		}
	}

	var httpResp *http.Response
	reqOpts := append(requestOptions(opts.Headers, opts.ProviderOptions), option.WithResponseInto(&httpResp))
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.F[openai.EmbeddingNewParamsInputUnion](openai.EmbeddingNewParamsInputArrayOfStrings(opts.Values)),
		Model:          openai.F(m.id),
		EncodingFormat: openai.F(openai.EmbeddingNewParamsEncodingFormatFloat),
	}, reqOpts...)
	if err != nil {
		return nil, apiError(err)
	}

	embeddings := make([][]float64, len(opts.Values))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}

	return &provider.EmbedResult{
		Embeddings: embeddings,
		Usage:      provider.EmbeddingUsage{Tokens: resp.Usage.PromptTokens},
		Response: provider.ResponseInfo{
			ModelID: resp.Model,
			Headers: responseHeaders(httpResp),
			Body:    gjson.Parse(resp.JSON.RawJSON()),
		},
	}, nil
}
