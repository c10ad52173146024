package wire

import (
	"context"
	"io"
	"net/http"

	"github.com/casualjim/weft/provider"
)

// PipeTextStream writes the text deltas of src to w as plain text, flushing
// after each one. It returns when the stream ends or ctx is cancelled.
func PipeTextStream(ctx context.Context, w http.ResponseWriter, src Source, options ...Option) error {
	o, err := newOptions(options)
	if err != nil {
		return err
	}
	writeHeaders(w, o, map[string]string{"Content-Type": "text/plain; charset=utf-8"})
	flusher, _ := w.(http.Flusher)

	for ev := range src.FullStreamContext(ctx) {
		td, ok := ev.(provider.TextDelta)
		if !ok || td.Text == "" {
			continue
		}
		if _, err := io.WriteString(w, td.Text); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
