package weft

import (
	"context"
	"math"

	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
	"golang.org/x/sync/errgroup"
)

// EmbedResult is the outcome of Embed.
type EmbedResult struct {
	Value     string
	Embedding []float64
	Usage     provider.EmbeddingUsage
	Response  provider.ResponseInfo
}

// EmbedManyResult is the outcome of EmbedMany. Embeddings[i] belongs to
// Values[i].
type EmbedManyResult struct {
	Values     []string
	Embeddings [][]float64
	Usage      provider.EmbeddingUsage
	Responses  []provider.ResponseInfo
}

// Embed embeds a single value.
func Embed(ctx context.Context, model provider.EmbeddingModel, value string, options ...CallOption) (*EmbedResult, error) {
	res, err := EmbedMany(ctx, model, []string{value}, options...)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != 1 {
		return nil, &provider.NoContentGeneratedError{Kind: "embedding", Responses: res.Responses}
	}
	out := &EmbedResult{Value: value, Embedding: res.Embeddings[0], Usage: res.Usage}
	if len(res.Responses) > 0 {
		out.Response = res.Responses[0]
	}
	return out, nil
}

// EmbedMany embeds values, split into batches of the model's
// MaxEmbeddingsPerCall. Batches run concurrently when the model supports it,
// at most WithMaxParallelCalls at a time.
func EmbedMany(ctx context.Context, model provider.EmbeddingModel, values []string, options ...CallOption) (*EmbedManyResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}
	if len(values) == 0 {
		return &EmbedManyResult{Values: values}, nil
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.embedMany",
		telemetry.Attr("ai.model.provider", model.Provider()),
		telemetry.Attr("ai.model.id", model.ModelID()),
		telemetry.Attr("ai.values.count", len(values)),
	)
	defer span.End()

	batches := chunk(values, model.MaxEmbeddingsPerCall())
	results := make([]*provider.EmbedResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	switch {
	case !model.SupportsParallelCalls():
		g.SetLimit(1)
	case s.MaxParallelCalls > 0:
		g.SetLimit(s.MaxParallelCalls)
	}
	for i, batch := range batches {
		g.Go(func() error {
			res, err := retry.Do(gctx, s.retryPolicy(), func(ctx context.Context) (*provider.EmbedResult, error) {
				return model.Embed(ctx, provider.EmbedOptions{
					Values:          batch,
					Headers:         s.Headers,
					ProviderOptions: s.ProviderOptions,
				})
			})
			if err != nil {
				return err
			}
			if len(res.Embeddings) != len(batch) {
				return &provider.InvalidArgumentError{Argument: "embeddings", Message: "model returned a different number of embeddings than values"}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}

	out := &EmbedManyResult{Values: values, Embeddings: make([][]float64, 0, len(values))}
	for _, res := range results {
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.Usage.Tokens += res.Usage.Tokens
		out.Responses = append(out.Responses, res.Response)
	}
	span.SetAttributes(telemetry.Attr("ai.usage.tokens", out.Usage.Tokens))
	return out, nil
}

func chunk(values []string, size int) [][]string {
	if size <= 0 || len(values) <= size {
		return [][]string{values}
	}
	var out [][]string
	for start := 0; start < len(values); start += size {
		out = append(out, values[start:min(start+size, len(values))])
	}
	return out
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when
// either vector has zero magnitude. It fails when the lengths differ.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &provider.InvalidArgumentError{Argument: "vectors", Message: "vectors must have the same length"}
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
