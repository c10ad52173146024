package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/pkg/uuidx"
)

// Slog returns a tracer that writes span lifecycles to logger at debug level.
func Slog(logger *slog.Logger) Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogTracer{log: logger.With(slogx.LoggerName("telemetry"))}
}

type slogTracer struct {
	log *slog.Logger
}

func (t *slogTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	s := &slogSpan{
		log:   t.log.With(slog.String("span", name), slog.String("span_id", uuidx.NewString())),
		start: time.Now(),
	}
	s.log.DebugContext(ctx, "span started", slogAttrs(attrs)...)
	return ctx, s
}

type slogSpan struct {
	log   *slog.Logger
	start time.Time

	mu    sync.Mutex
	attrs []Attribute
	ended bool
}

func (s *slogSpan) SetAttributes(attrs ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

func (s *slogSpan) AddEvent(name string, attrs ...Attribute) {
	s.log.Debug("span event", append([]any{slog.String("event", name)}, slogAttrs(attrs)...)...)
}

func (s *slogSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.log.Debug("span error", slogx.Error(err))
}

func (s *slogSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.log.Debug("span ended", append([]any{slog.Duration("duration", time.Since(s.start))}, slogAttrs(s.attrs)...)...)
}

func slogAttrs(attrs []Attribute) []any {
	out := make([]any, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.Any(a.Key, a.Value))
	}
	return out
}
