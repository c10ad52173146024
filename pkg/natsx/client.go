// Package natsx connects to NATS using the environment.
package natsx

import (
	"cmp"
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient connects to NATS_URL, or nats.DefaultURL when it is unset. Without
// options the connection is named "weft" and compressed.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name("weft"), nats.Compression(true))
	}
	return nats.Connect(URL(), opts...)
}

// URL is the server NewClient connects to.
func URL() string {
	return cmp.Or(os.Getenv("NATS_URL"), nats.DefaultURL)
}
