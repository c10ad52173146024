package weft

import (
	"context"

	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
)

// RankedDocument is a document with its relevance score.
type RankedDocument struct {
	OriginalIndex int
	Score         float64
	Document      string
}

// RerankResult is the outcome of Rerank. Ranking is ordered by descending
// relevance.
type RerankResult struct {
	Query     string
	Ranking   []RankedDocument
	Warnings  []provider.Warning
	Response  provider.ResponseInfo
	Documents []string
}

// RerankedDocuments returns the documents in ranking order.
func (r *RerankResult) RerankedDocuments() []string {
	out := make([]string, len(r.Ranking))
	for i, d := range r.Ranking {
		out[i] = d.Document
	}
	return out
}

// Rerank orders documents by relevance to query. WithTopN limits the number
// of ranked documents returned.
func Rerank(ctx context.Context, model provider.RerankingModel, query string, documents []string, options ...CallOption) (*RerankResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err == nil && s.TopN < 0 {
		err = &provider.InvalidArgumentError{Argument: "topN", Message: "must be >= 0"}
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}
	if len(documents) == 0 {
		return &RerankResult{Query: query, Documents: documents}, nil
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.rerank",
		telemetry.Attr("ai.model.provider", model.Provider()),
		telemetry.Attr("ai.model.id", model.ModelID()),
		telemetry.Attr("ai.documents.count", len(documents)),
	)
	defer span.End()

	res, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.RerankResult, error) {
		return model.Rerank(ctx, provider.RerankOptions{
			Query:           query,
			Documents:       documents,
			TopN:            s.TopN,
			Headers:         s.Headers,
			ProviderOptions: s.ProviderOptions,
		})
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}

	out := &RerankResult{
		Query:     query,
		Ranking:   make([]RankedDocument, 0, len(res.Ranking)),
		Warnings:  res.Warnings,
		Response:  res.Response,
		Documents: documents,
	}
	for _, r := range res.Ranking {
		if r.Index < 0 || r.Index >= len(documents) {
			err := &provider.InvalidArgumentError{Argument: "ranking", Message: "model ranked a document that does not exist"}
			span.RecordError(err)
			return nil, err
		}
		out.Ranking = append(out.Ranking, RankedDocument{OriginalIndex: r.Index, Score: r.Score, Document: documents[r.Index]})
	}
	return out, nil
}
