package wire

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/fogfish/opts"
)

// DefaultErrorMessage replaces error details in frames sent to clients.
const DefaultErrorMessage = "An error occurred."

// Source is a replayable event stream, such as *weft.StreamTextResult or
// *weft.StreamObjectResult.
type Source interface {
	FullStreamContext(ctx context.Context) iter.Seq[provider.StreamEvent]
}

type Options struct {
	Status       int
	Headers      map[string]string
	ErrorMessage func(error) string
	Logger       *slog.Logger
}

type Option = opts.Option[Options]

// WithStatus sets the HTTP status code, 200 by default.
var WithStatus = opts.ForName[Options, int]("Status")

// WithHeaders adds response headers.
func WithHeaders(headers map[string]string) Option {
	return opts.Type[Options](func(o *Options) error {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
		return nil
	})
}

// WithErrorMessage formats errors for the client instead of masking them.
func WithErrorMessage(fn func(error) string) Option {
	return opts.Type[Options](func(o *Options) error {
		o.ErrorMessage = fn
		return nil
	})
}

func WithLogger(logger *slog.Logger) Option {
	return opts.Type[Options](func(o *Options) error {
		o.Logger = logger
		return nil
	})
}

func newOptions(options []Option) (Options, error) {
	o := Options{Status: http.StatusOK}
	if err := opts.Apply(&o, options); err != nil {
		return o, err
	}
	if o.Status < 100 || o.Status > 599 {
		return o, &provider.InvalidArgumentError{Argument: "status", Message: "must be a valid HTTP status code"}
	}
	if o.ErrorMessage == nil {
		o.ErrorMessage = func(error) string { return DefaultErrorMessage }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.With(slogx.LoggerName("weft.wire"))
	return o, nil
}

func writeHeaders(w http.ResponseWriter, o Options, defaults map[string]string) {
	h := w.Header()
	for k, v := range defaults {
		h.Set(k, v)
	}
	for k, v := range o.Headers {
		h.Set(k, v)
	}
	w.WriteHeader(o.Status)
}
