package weft

import (
	"context"

	"github.com/casualjim/weft/internal/retry"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/telemetry"
	"golang.org/x/sync/errgroup"
)

// ImageResult is the outcome of GenerateImage.
type ImageResult struct {
	Images    []provider.File
	Warnings  []provider.Warning
	Responses []provider.ResponseInfo
}

// Image returns the first image.
func (r *ImageResult) Image() provider.File { return r.Images[0] }

// GenerateImage generates WithN images (default 1) for prompt. Requests for
// more images than the model accepts per call are split and run concurrently.
func GenerateImage(ctx context.Context, model provider.ImageModel, prompt string, options ...CallOption) (*ImageResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err == nil && s.N < 0 {
		err = &provider.InvalidArgumentError{Argument: "n", Message: "must be >= 0"}
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.generateImage", mediaAttributes(&s, model, "ai.prompt", prompt)...)
	defer span.End()

	n := max(s.N, 1)
	perCall := model.MaxImagesPerCall()
	if perCall <= 0 {
		perCall = n
	}
	var counts []int
	for left := n; left > 0; left -= perCall {
		counts = append(counts, min(left, perCall))
	}

	results := make([]*provider.ImageResult, len(counts))
	g, gctx := errgroup.WithContext(ctx)
	if s.MaxParallelCalls > 0 {
		g.SetLimit(s.MaxParallelCalls)
	}
	for i, count := range counts {
		g.Go(func() error {
			res, err := retry.Do(gctx, s.retryPolicy(), func(ctx context.Context) (*provider.ImageResult, error) {
				return model.Generate(ctx, provider.ImageOptions{
					Prompt:          prompt,
					N:               count,
					Size:            s.Size,
					AspectRatio:     s.AspectRatio,
					Seed:            s.Seed,
					Headers:         s.Headers,
					ProviderOptions: s.ProviderOptions,
				})
			})
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}

	out := &ImageResult{}
	for _, res := range results {
		out.Images = append(out.Images, res.Images...)
		out.Warnings = append(out.Warnings, res.Warnings...)
		out.Responses = append(out.Responses, res.Response)
	}
	if len(out.Images) == 0 {
		return nil, noContent(span, "image", out.Responses...)
	}
	return out, nil
}

// SpeechResult is the outcome of GenerateSpeech.
type SpeechResult struct {
	Audio    provider.File
	Warnings []provider.Warning
	Response provider.ResponseInfo
}

// GenerateSpeech turns text into audio. WithVoice, WithOutputFormat,
// WithInstructions and WithSpeed are passed to the model.
func GenerateSpeech(ctx context.Context, model provider.SpeechModel, text string, options ...CallOption) (*SpeechResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.generateSpeech", mediaAttributes(&s, model, "ai.text", text)...)
	defer span.End()

	res, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.SpeechResult, error) {
		return model.Generate(ctx, provider.SpeechOptions{
			Text:            text,
			Voice:           s.Voice,
			OutputFormat:    s.OutputFormat,
			Instructions:    s.Instructions,
			Speed:           s.Speed,
			Headers:         s.Headers,
			ProviderOptions: s.ProviderOptions,
		})
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}
	if len(res.Audio.Data) == 0 {
		return nil, noContent(span, "speech", res.Response)
	}
	return &SpeechResult{Audio: res.Audio, Warnings: res.Warnings, Response: res.Response}, nil
}

// TranscriptionResult is the outcome of Transcribe.
type TranscriptionResult struct {
	Text              string
	Segments          []provider.TranscriptionSegment
	Language          string
	DurationInSeconds float64
	Warnings          []provider.Warning
	Response          provider.ResponseInfo
}

// Transcribe turns audio of the given media type into text.
func Transcribe(ctx context.Context, model provider.TranscriptionModel, audio []byte, mediaType string, options ...CallOption) (*TranscriptionResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err == nil && len(audio) == 0 {
		err = &provider.InvalidArgumentError{Argument: "audio", Message: "audio is required"}
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.transcribe", mediaAttributes(&s, model, "ai.audio.mediaType", mediaType)...)
	defer span.End()

	res, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.TranscriptionResult, error) {
		return model.Transcribe(ctx, provider.TranscriptionOptions{
			Audio:           audio,
			MediaType:       mediaType,
			Headers:         s.Headers,
			ProviderOptions: s.ProviderOptions,
		})
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}
	if res.Text == "" {
		return nil, noContent(span, "transcript", res.Response)
	}
	span.SetAttributes(s.Telemetry.Outputs(telemetry.Attr("ai.response.text", res.Text))...)
	return &TranscriptionResult{
		Text:              res.Text,
		Segments:          res.Segments,
		Language:          res.Language,
		DurationInSeconds: res.DurationInSeconds,
		Warnings:          res.Warnings,
		Response:          res.Response,
	}, nil
}

// VideoResult is the outcome of GenerateVideo.
type VideoResult struct {
	Videos   []provider.File
	Warnings []provider.Warning
	Response provider.ResponseInfo
}

// GenerateVideo generates WithN videos (default 1) for prompt.
func GenerateVideo(ctx context.Context, model provider.VideoModel, prompt string, options ...CallOption) (*VideoResult, error) {
	s, err := newSettings(options)
	if err == nil {
		err = provider.Check(model)
	}
	if err == nil && (s.N < 0 || s.DurationSeconds < 0) {
		err = &provider.InvalidArgumentError{Argument: "video", Message: "n and duration must be >= 0"}
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	ctx, span := s.Telemetry.Start(ctx, "ai.generateVideo", mediaAttributes(&s, model, "ai.prompt", prompt)...)
	defer span.End()

	res, err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) (*provider.VideoResult, error) {
		return model.Generate(ctx, provider.VideoOptions{
			Prompt:          prompt,
			N:               max(s.N, 1),
			AspectRatio:     s.AspectRatio,
			DurationSeconds: s.DurationSeconds,
			Seed:            s.Seed,
			Headers:         s.Headers,
			ProviderOptions: s.ProviderOptions,
		})
	})
	if err != nil {
		span.RecordError(err)
		s.emitError(err)
		return nil, err
	}
	if len(res.Videos) == 0 {
		return nil, noContent(span, "video", res.Response)
	}
	return &VideoResult{Videos: res.Videos, Warnings: res.Warnings, Response: res.Response}, nil
}

func mediaAttributes(s *CallSettings, model provider.Model, key, input string) []telemetry.Attribute {
	return append([]telemetry.Attribute{
		telemetry.Attr("ai.model.provider", model.Provider()),
		telemetry.Attr("ai.model.id", model.ModelID()),
	}, s.Telemetry.Inputs(telemetry.Attr(key, input))...)
}

func noContent(span telemetry.Span, kind string, responses ...provider.ResponseInfo) error {
	err := &provider.NoContentGeneratedError{Kind: kind, Responses: responses}
	span.RecordError(err)
	return err
}
