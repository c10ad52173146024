package mock

import (
	"context"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/weft/provider"
)

type base struct {
	model string
}

func (base) SpecificationVersion() string { return provider.SpecificationV2 }
func (base) Provider() string             { return DefaultProvider }
func (b base) ModelID() string {
	if b.model != "" {
		return b.model
	}
	return DefaultModelID
}

// EmbeddingModel returns deterministic unit vectors derived from the input
// text, so equal values always embed equally.
type EmbeddingModel struct {
	base
	Dimensions int
	MaxPerCall int
	Parallel   bool
	Err        error

	mu    sync.Mutex
	calls [][]string
}

func NewEmbeddingModel(dimensions, maxPerCall int) *EmbeddingModel {
	return &EmbeddingModel{Dimensions: dimensions, MaxPerCall: maxPerCall, Parallel: true}
}

func (m *EmbeddingModel) MaxEmbeddingsPerCall() int   { return m.MaxPerCall }
func (m *EmbeddingModel) SupportsParallelCalls() bool { return m.Parallel }

func (m *EmbeddingModel) Embed(ctx context.Context, opts provider.EmbedOptions) (*provider.EmbedResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(opts.Values))
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}

	res := &provider.EmbedResult{Embeddings: make([][]float64, len(opts.Values))}
	for i, v := range opts.Values {
		res.Embeddings[i] = m.vector(v)
		res.Usage.Tokens += int64(len(strings.Fields(v)))
	}
	return res, nil
}

// Calls returns the batches passed to Embed.
func (m *EmbeddingModel) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *EmbeddingModel) vector(value string) []float64 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = 3
	}
	vec := make([]float64, dims)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(value))
		vec[i] = float64(h.Sum64()%2000)/1000 - 1
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// ImageModel returns Images (or one placeholder PNG header per requested
// image when Images is empty).
type ImageModel struct {
	base
	MaxPerCall int
	Images     []provider.File
	Err        error

	mu    sync.Mutex
	calls []provider.ImageOptions
}

func (m *ImageModel) MaxImagesPerCall() int { return m.MaxPerCall }

func (m *ImageModel) Generate(ctx context.Context, opts provider.ImageOptions) (*provider.ImageResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Images != nil {
		return &provider.ImageResult{Images: m.Images}, nil
	}
	images := make([]provider.File, max(opts.N, 1))
	for i := range images {
		images[i] = provider.File{Data: []byte("\x89PNG\r\n\x1a\n"), MediaType: "image/png"}
	}
	return &provider.ImageResult{Images: images}, nil
}

// Calls returns the options of every Generate call.
func (m *ImageModel) Calls() []provider.ImageOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// SpeechModel returns Audio for every request.
type SpeechModel struct {
	base
	Audio provider.File
	Err   error
}

func (m *SpeechModel) Generate(_ context.Context, opts provider.SpeechOptions) (*provider.SpeechResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &provider.SpeechResult{Audio: m.Audio}, nil
}

// TranscriptionModel returns Result for every request.
type TranscriptionModel struct {
	base
	Result provider.TranscriptionResult
	Err    error
}

func (m *TranscriptionModel) Transcribe(_ context.Context, _ provider.TranscriptionOptions) (*provider.TranscriptionResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	res := m.Result
	return &res, nil
}

// RerankingModel scores documents by how many query words they contain.
type RerankingModel struct {
	base
	Err error
}

func (m *RerankingModel) Rerank(_ context.Context, opts provider.RerankOptions) (*provider.RerankResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	words := strings.Fields(strings.ToLower(opts.Query))
	ranking := make([]provider.RankedDocument, len(opts.Documents))
	for i, doc := range opts.Documents {
		doc = strings.ToLower(doc)
		var hits float64
		for _, w := range words {
			if strings.Contains(doc, w) {
				hits++
			}
		}
		score := 0.0
		if len(words) > 0 {
			score = hits / float64(len(words))
		}
		ranking[i] = provider.RankedDocument{Index: i, Score: score}
	}
	slices.SortStableFunc(ranking, func(a, b provider.RankedDocument) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if opts.TopN > 0 && opts.TopN < len(ranking) {
		ranking = ranking[:opts.TopN]
	}
	return &provider.RerankResult{Ranking: ranking}, nil
}

// VideoModel returns Videos for every request.
type VideoModel struct {
	base
	Videos []provider.File
	Err    error
}

func (m *VideoModel) Generate(_ context.Context, _ provider.VideoOptions) (*provider.VideoResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &provider.VideoResult{Videos: m.Videos}, nil
}
